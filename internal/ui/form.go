package ui

import (
	"strings"

	"github.com/DaanHessen/storyloom/internal/engine"
)

const (
	fieldTitle = iota
	fieldPremise
	fieldNuclei
	fieldTone
	fieldAge
	fieldFirstPerson
	fieldSubmit
	fieldCount
)

var fieldLabels = [fieldCount]string{"Title", "Premise", "Nuclei (separate with ;)", "Tone", "Age rating", "First person", "Create story"}

// storyForm is the new-story form.
type storyForm struct {
	focus       int
	title       string
	premise     string
	nuclei      string
	tone        int
	age         int
	firstPerson bool
}

func newStoryForm() storyForm {
	f := storyForm{}
	for i, a := range engine.AllAgeRatings {
		if a == engine.Age16 {
			f.age = i
		}
	}
	return f
}

func (f storyForm) params() engine.Params {
	return engine.Params{
		Title:       f.title,
		Premise:     f.premise,
		Nuclei:      f.nuclei,
		Tone:        engine.AllTones[f.tone],
		AgeRating:   engine.AllAgeRatings[f.age],
		FirstPerson: f.firstPerson,
	}
}

func (f *storyForm) text() *string {
	switch f.focus {
	case fieldTitle:
		return &f.title
	case fieldPremise:
		return &f.premise
	case fieldNuclei:
		return &f.nuclei
	}
	return nil
}

// key applies one key press and reports whether the form was submitted.
func (f *storyForm) key(k string, runes []rune) (submit bool) {
	switch k {
	case "tab", "down":
		f.focus = (f.focus + 1) % fieldCount
		return false
	case "shift+tab", "up":
		f.focus = (f.focus + fieldCount - 1) % fieldCount
		return false
	case "enter":
		if f.focus == fieldSubmit {
			return true
		}
		f.focus++
		return false
	case "left", "right":
		step := 1
		if k == "left" {
			step = -1
		}
		switch f.focus {
		case fieldTone:
			f.tone = cycle(f.tone, step, len(engine.AllTones))
		case fieldAge:
			f.age = cycle(f.age, step, len(engine.AllAgeRatings))
		case fieldFirstPerson:
			f.firstPerson = !f.firstPerson
		}
		return false
	case " ":
		if f.focus == fieldFirstPerson {
			f.firstPerson = !f.firstPerson
			return false
		}
	case "backspace":
		if t := f.text(); t != nil && *t != "" {
			r := []rune(*t)
			*t = string(r[:len(r)-1])
		}
		return false
	}
	if t := f.text(); t != nil && len(runes) > 0 {
		*t += string(runes)
	}
	return false
}

func (f storyForm) valueOf(field int) string {
	switch field {
	case fieldTitle:
		return f.title
	case fieldPremise:
		return f.premise
	case fieldNuclei:
		return f.nuclei
	case fieldTone:
		return "< " + string(engine.AllTones[f.tone]) + " >"
	case fieldAge:
		return "< " + string(engine.AllAgeRatings[f.age]) + " >"
	case fieldFirstPerson:
		if f.firstPerson {
			return "[x]"
		}
		return "[ ]"
	}
	return ""
}

func (f storyForm) ready() bool { return strings.TrimSpace(f.premise) != "" }

func cycle(i, step, n int) int {
	i = (i + step) % n
	if i < 0 {
		i += n
	}
	return i
}
