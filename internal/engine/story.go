package engine

import (
	"strings"
	"time"
)

// ChoicesPerPause is the number of options offered at every decision point.
const ChoicesPerPause = 3

// DefaultChapterCap is the chapter after whose conclusion a story completes.
const DefaultChapterCap = 10

// Params are the creation parameters of a story. They never change after creation.
type Params struct {
	Title       string    `json:"title" yaml:"title" validate:"max=200"`
	Premise     string    `json:"premise" yaml:"premise" validate:"required,max=4000"`
	Nuclei      string    `json:"nuclei" yaml:"nuclei,omitempty" validate:"max=1000"`
	Tone        Tone      `json:"tone" yaml:"tone" validate:"required,oneof=Adventure Mystery Drama Action Fantasy Horror Romance"`
	AgeRating   AgeRating `json:"ageRating" yaml:"age_rating" validate:"required,oneof=10+ 12+ 14+ 16+ 18+"`
	FirstPerson bool      `json:"firstPerson" yaml:"first_person"`
}

// WithDefaults trims free text and fills tone and age rating when unset.
func (p Params) WithDefaults() Params {
	p.Title = strings.TrimSpace(p.Title)
	p.Premise = strings.TrimSpace(p.Premise)
	p.Nuclei = strings.TrimSpace(p.Nuclei)
	if p.Tone == "" {
		p.Tone = ToneAdventure
	}
	if p.AgeRating == "" {
		p.AgeRating = Age16
	}
	return p
}

// NucleiList splits the nuclei field on semicolons.
func (p Params) NucleiList() []string {
	var out []string
	for _, n := range strings.Split(p.Nuclei, ";") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Page is an archived, read-only snapshot of text the reader has moved past.
type Page struct {
	Label  string    `json:"label" yaml:"label"`
	Text   string    `json:"text" yaml:"text"`
	Choice string    `json:"choice,omitempty" yaml:"choice,omitempty"`
	At     time.Time `json:"at" yaml:"at"`
}

// Story is the persisted record of one interactive story.
type Story struct {
	ID     string `json:"storyId" yaml:"id"`
	Params `yaml:",inline"`

	Status          Status    `json:"status" yaml:"status"`
	Chapter         int       `json:"chapter" yaml:"chapter"`
	Stage           Stage     `json:"stage" yaml:"stage"`
	FullText        string    `json:"fullText" yaml:"full_text"`
	PendingChoices  []string  `json:"pendingChoices,omitempty" yaml:"pending_choices,omitempty"`
	PendingChoiceAt int       `json:"pendingChoiceAt,omitempty" yaml:"pending_choice_at,omitempty"`
	ChoiceHistory   []int     `json:"choiceHistory" yaml:"choice_history"`
	Pages           []Page    `json:"pages" yaml:"pages"`
	CreatedAt       time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" yaml:"updated_at"`
}

// NewStory returns a fresh record at chapter 1, stage 0.
func NewStory(id string, p Params, now time.Time) Story {
	return Story{
		ID:        id,
		Params:    p,
		Status:    StatusActive,
		Chapter:   1,
		Stage:     StageRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy sharing no slices with s.
func (s Story) Clone() Story {
	c := s
	if s.PendingChoices != nil {
		c.PendingChoices = append([]string(nil), s.PendingChoices...)
	}
	if s.ChoiceHistory != nil {
		c.ChoiceHistory = append([]int(nil), s.ChoiceHistory...)
	}
	if s.Pages != nil {
		c.Pages = append([]Page(nil), s.Pages...)
	}
	return c
}

// HasPendingChoices reports whether a decision is waiting for the reader.
func (s Story) HasPendingChoices() bool { return len(s.PendingChoices) > 0 }

func (s *Story) clearPending() {
	s.PendingChoices = nil
	s.PendingChoiceAt = 0
}

func (s *Story) installChoices(choices []string) {
	s.PendingChoices = append([]string(nil), choices...)
	s.PendingChoiceAt = s.Stage.PauseIndex()
}

// DuplicateKey identifies stories created from the same title and premise.
func DuplicateKey(p Params) string {
	return normalize(p.Title) + "|" + normalize(p.Premise)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
