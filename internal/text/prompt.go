package text

import (
	"fmt"
	"strings"

	"github.com/DaanHessen/storyloom/internal/engine"
)

const replyFormat = `Reply with one JSON object and nothing else:
{"text": "<the prose>", "choices": ["<option>", "<option>", "<option>"]}
Write "text" as plain prose paragraphs separated by blank lines.`

// Prompter renders prompts from a story record.
type Prompter struct {
	budget     *Budget
	chapterCap int
}

func NewPrompter(budget *Budget, chapterCap int) *Prompter {
	if chapterCap <= 0 {
		chapterCap = engine.DefaultChapterCap
	}
	return &Prompter{budget: budget, chapterCap: chapterCap}
}

// System describes the story and the reply format.
func (p *Prompter) System(st engine.Story) string {
	var b strings.Builder
	b.WriteString("You are the narrator of an interactive story told in chapters. ")
	b.WriteString("Every chapter has an opening that stops at a first decision, a middle that stops at a second decision, and a conclusion.\n\n")
	if st.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", st.Title)
	}
	fmt.Fprintf(&b, "Premise: %s\n", st.Premise)
	if nuclei := st.NucleiList(); len(nuclei) > 0 {
		fmt.Fprintf(&b, "Story nuclei: %s\n", strings.Join(nuclei, "; "))
	}
	fmt.Fprintf(&b, "Tone: %s\n", st.Tone)
	fmt.Fprintf(&b, "Audience: %s. Keep every scene appropriate for that age.\n", st.AgeRating)
	if st.FirstPerson {
		b.WriteString("Narrate in the first person; the reader is the protagonist.\n")
	} else {
		b.WriteString("Narrate in the third person.\n")
	}
	fmt.Fprintf(&b, "The story lasts %d chapters.\n\n", p.chapterCap)
	b.WriteString(replyFormat)
	return b.String()
}

// Segment builds the user prompt for the segment following stage from.
func (p *Prompter) Segment(st engine.Story, from engine.Stage) (system, user string) {
	var b strings.Builder
	if ctx := p.storySoFar(st); ctx != "" {
		b.WriteString("Story so far:\n\n")
		b.WriteString(ctx)
		b.WriteString("\n\n---\n\n")
	}
	last := lastChoice(st)
	switch from {
	case engine.StageRequested:
		fmt.Fprintf(&b, "Write the opening of chapter %d, about half of the chapter. ", st.Chapter)
		b.WriteString("Stop at a moment of decision and offer exactly 3 distinct choices for what happens next.")
	case engine.StagePause1:
		fmt.Fprintf(&b, "The reader chose: %q. ", last)
		fmt.Fprintf(&b, "Continue chapter %d from that choice until a second decision point near the end of the chapter. ", st.Chapter)
		b.WriteString("Offer exactly 3 distinct choices.")
	case engine.StagePause2:
		fmt.Fprintf(&b, "The reader chose: %q. ", last)
		fmt.Fprintf(&b, "Write the conclusion of chapter %d. ", st.Chapter)
		if st.Chapter >= p.chapterCap {
			b.WriteString("This is the final chapter: bring the whole story to a satisfying end. ")
		}
		b.WriteString(`Do not offer choices; "choices" must be an empty list.`)
	}
	return p.System(st), b.String()
}

// Continuation builds the user prompt that repairs a stuck segment.
func (p *Prompter) Continuation(st engine.Story, reason engine.RepairReason) (system, user string) {
	var b strings.Builder
	b.WriteString("Story so far:\n\n")
	b.WriteString(p.storySoFar(st))
	b.WriteString("\n\n---\n\n")
	switch reason {
	case engine.ReasonNeedChoices:
		b.WriteString("The last passage stopped before its decision point or without options. ")
		b.WriteString("Continue seamlessly from its final words without repeating anything, reach the decision, ")
		b.WriteString("and offer exactly 3 distinct choices. If the passage already reaches the decision, \"text\" may be empty.")
	case engine.ReasonNeedFinish:
		fmt.Fprintf(&b, "The conclusion of chapter %d was cut off. ", st.Chapter)
		b.WriteString("Continue seamlessly from its final words without repeating anything and finish the chapter. ")
		b.WriteString(`Do not offer choices; "choices" must be an empty list.`)
	}
	return p.System(st), b.String()
}

// storySoFar renders archived pages and the live text, oldest first, keeping
// as much recent context as the budget allows.
func (p *Prompter) storySoFar(st engine.Story) string {
	parts := make([]string, 0, len(st.Pages)+1)
	for _, pg := range st.Pages {
		part := pg.Text
		if pg.Choice != "" {
			part += fmt.Sprintf("\n\n[The reader chose: %s]", pg.Choice)
		}
		parts = append(parts, part)
	}
	if t := strings.TrimSpace(st.FullText); t != "" {
		parts = append(parts, t)
	}
	if p.budget != nil {
		parts = p.budget.Tail(parts)
	}
	return strings.Join(parts, "\n\n")
}

func lastChoice(st engine.Story) string {
	if n := len(st.Pages); n > 0 {
		return st.Pages[n-1].Choice
	}
	return ""
}
