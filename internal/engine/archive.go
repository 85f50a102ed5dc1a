package engine

import (
	"fmt"
	"strings"
	"time"
)

// PageLabel names the page that closes at stage closed of the given chapter.
func PageLabel(chapter int, closed Stage) string {
	switch closed {
	case StagePause1:
		return fmt.Sprintf("Chapter %d · Pause 1", chapter)
	case StagePause2:
		return fmt.Sprintf("Chapter %d · Pause 2", chapter)
	case StageConcluded:
		return fmt.Sprintf("Chapter %d · Conclusion", chapter)
	}
	return fmt.Sprintf("Chapter %d", chapter)
}

// ArchiveCurrentAsPage appends the live text of s as a new page.
func ArchiveCurrentAsPage(s *Story, label, choice string, at time.Time) {
	s.Pages = append(s.Pages, Page{
		Label:  label,
		Text:   strings.TrimSpace(s.FullText),
		Choice: choice,
		At:     at,
	})
}

// Pager tracks which page a reader is looking at. Index len(pages) is the
// live page; anything lower is an archived page.
type Pager struct {
	index int
	total int
}

func NewPager(pages int) Pager { return Pager{index: pages, total: pages} }

// Sync adopts a new page count. A reader at the live page stays on it.
func (p *Pager) Sync(pages int) {
	live := p.AtLive()
	p.total = pages
	if live || p.index > pages {
		p.index = pages
	}
}

func (p Pager) Index() int   { return p.index }
func (p Pager) AtLive() bool { return p.index >= p.total }

// Prev moves one page back and reports whether it moved.
func (p *Pager) Prev() bool {
	if p.index == 0 {
		return false
	}
	p.index--
	return true
}

// Next moves one page forward and reports whether it moved.
func (p *Pager) Next() bool {
	if p.index >= p.total {
		return false
	}
	p.index++
	return true
}

// Live jumps to the live page.
func (p *Pager) Live() { p.index = p.total }
