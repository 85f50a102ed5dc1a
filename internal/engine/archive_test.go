package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageLabel(t *testing.T) {
	assert.Equal(t, "Chapter 3 · Pause 1", PageLabel(3, StagePause1))
	assert.Equal(t, "Chapter 3 · Pause 2", PageLabel(3, StagePause2))
	assert.Equal(t, "Chapter 3 · Conclusion", PageLabel(3, StageConcluded))
}

func TestArchiveCurrentAsPage(t *testing.T) {
	st := storyAt(StagePause1, 1)
	st.FullText = "  first page \n"
	ArchiveCurrentAsPage(&st, "Chapter 1 · Pause 1", "Run", testClock())
	st.FullText = "second"
	ArchiveCurrentAsPage(&st, "Chapter 1 · Pause 2", "Hide", testClock())

	require.Len(t, st.Pages, 2)
	assert.Equal(t, Page{Label: "Chapter 1 · Pause 1", Text: "first page", Choice: "Run", At: testClock()}, st.Pages[0])
	assert.Equal(t, "second", st.Pages[1].Text)
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	st := storyAt(StagePause1, 1)
	st.ChoiceHistory = []int{1}
	ArchiveCurrentAsPage(&st, "p", "", testClock())

	c := st.Clone()
	c.PendingChoices[0] = "changed"
	c.ChoiceHistory[0] = 2
	c.Pages[0].Text = "changed"

	assert.Equal(t, testChoices[0], st.PendingChoices[0])
	assert.Equal(t, 1, st.ChoiceHistory[0])
	assert.NotEqual(t, "changed", st.Pages[0].Text)
}

func TestPager(t *testing.T) {
	p := NewPager(2)
	assert.True(t, p.AtLive())
	assert.False(t, p.Next())

	assert.True(t, p.Prev())
	assert.False(t, p.AtLive())
	assert.Equal(t, 1, p.Index())
	assert.True(t, p.Prev())
	assert.False(t, p.Prev())
	assert.Equal(t, 0, p.Index())

	// a new page while browsing history keeps the reader where they are
	p.Sync(3)
	assert.Equal(t, 0, p.Index())
	assert.False(t, p.AtLive())

	p.Live()
	assert.True(t, p.AtLive())
	p.Sync(4)
	assert.True(t, p.AtLive())
	assert.Equal(t, 4, p.Index())
}

func TestDuplicateKeyNormalizes(t *testing.T) {
	a := Params{Title: "  The   Tower ", Premise: "A keeper\nwakes ALONE."}
	b := Params{Title: "the tower", Premise: "a keeper wakes alone."}
	assert.Equal(t, DuplicateKey(a), DuplicateKey(b))
	assert.NotEqual(t, DuplicateKey(a), DuplicateKey(Params{Title: "the tower", Premise: "another"}))
}
