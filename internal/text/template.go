package text

import (
	"context"
	"fmt"
	"strings"

	"github.com/DaanHessen/storyloom/internal/engine"
)

// TemplateGenerator writes deterministic placeholder prose without any
// network access. Output depends only on the story id, chapter and stage.
type TemplateGenerator struct{}

func NewTemplate() *TemplateGenerator { return &TemplateGenerator{} }

func (t *TemplateGenerator) Name() string          { return "template" }
func (t *TemplateGenerator) RequiresLicense() bool { return false }
func (t *TemplateGenerator) Configure(_, _ string) {}

var (
	templateOpenings = []string{
		"The air changed before anything else did.",
		"Nobody noticed the first sign except %s.",
		"It began, as these things do, with a knock that should not have come.",
		"By the time the bells stopped, the road behind was gone.",
	}
	templateMiddles = []string{
		"Every step forward cost something that could not be named.",
		"The silence pressed in, patient and attentive.",
		"What had looked like shelter turned out to be a door.",
		"Old promises surfaced, each asking to be kept.",
	}
	templateEndings = []string{
		"When it was over, the morning felt borrowed but real.",
		"The chapter closed the way a hand closes around a key.",
		"Nothing was solved, yet something had been decided.",
	}
	templateChoices = []string{
		"Follow the faint light ahead",
		"Turn back and warn the others",
		"Wait and listen",
		"Open the sealed door",
		"Ask the stranger for the truth",
		"Hide the letter and say nothing",
		"Take the longer road",
	}
)

func (t *TemplateGenerator) GenerateSegment(_ context.Context, st engine.Story, from engine.Stage) (engine.Segment, error) {
	next, err := engine.NextStage(from)
	if err != nil {
		return engine.Segment{}, err
	}
	s := t.stream(st, fmt.Sprintf("chapter:%d:stage:%d", st.Chapter, next))
	hero := strings.TrimSpace(st.Title)
	if hero == "" {
		hero = "the traveller"
	}

	var paras []string
	switch next {
	case engine.StagePause1:
		paras = append(paras, fmt.Sprintf("Chapter %d.", st.Chapter))
		open := templateOpenings[s.intn(len(templateOpenings))]
		if strings.Contains(open, "%s") {
			open = fmt.Sprintf(open, hero)
		}
		paras = append(paras, open, templateMiddles[s.intn(len(templateMiddles))])
	case engine.StagePause2:
		paras = append(paras, templateMiddles[s.intn(len(templateMiddles))], templateMiddles[s.intn(len(templateMiddles))])
	case engine.StageConcluded:
		paras = append(paras, templateMiddles[s.intn(len(templateMiddles))], templateEndings[s.intn(len(templateEndings))])
	}
	seg := engine.Segment{Text: strings.Join(paras, "\n\n")}
	if engine.ExpectsChoices(from) {
		seg.Choices = s.child("choices").pick(templateChoices, engine.ChoicesPerPause)
	}
	return seg, nil
}

func (t *TemplateGenerator) ContinueGeneration(_ context.Context, st engine.Story, reason engine.RepairReason) (engine.Segment, error) {
	s := t.stream(st, fmt.Sprintf("chapter:%d:stage:%d:repair:%s:%d", st.Chapter, st.Stage, reason, len(st.FullText)))
	switch reason {
	case engine.ReasonNeedChoices:
		return engine.Segment{Choices: s.pick(templateChoices, engine.ChoicesPerPause)}, nil
	case engine.ReasonNeedFinish:
		return engine.Segment{Text: templateEndings[s.intn(len(templateEndings))]}, nil
	}
	return engine.Segment{}, fmt.Errorf("unknown repair reason %q", reason)
}

func (t *TemplateGenerator) stream(st engine.Story, label string) *stream {
	return newStream(derive(seedFromString(st.ID), label))
}
