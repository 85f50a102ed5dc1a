package engine

import (
	"context"
	"strings"
)

// Segment is one validated unit of generated prose.
type Segment struct {
	Text    string   `json:"text"`
	Choices []string `json:"choices,omitempty"`
}

// Generator produces story segments. Implementations return a
// *MalformedResponseError when a reply arrived with the wrong shape and any
// other error for transport or service failures.
type Generator interface {
	// GenerateSegment writes the segment that follows stage from. From 0
	// and 50 it ends at a decision point with three choices; from 90 it
	// concludes the chapter.
	GenerateSegment(ctx context.Context, s Story, from Stage) (Segment, error)
	// ContinueGeneration continues fullText without repeating it.
	ContinueGeneration(ctx context.Context, s Story, reason RepairReason) (Segment, error)
}

// ExpectsChoices reports whether a segment requested from stage from must
// carry choices.
func ExpectsChoices(from Stage) bool {
	return from == StageRequested || from == StagePause1
}

// NeedsChoices reports a pause without the choices that should close it.
func NeedsChoices(s Story) bool {
	return s.Stage.IsPause() && !s.HasPendingChoices()
}

// NeedsFinish reports a conclusion that is missing or cut off.
func NeedsFinish(s Story) bool {
	if s.Stage != StageConcluded {
		return false
	}
	t := strings.TrimSpace(s.FullText)
	return t == "" || IsLikelyTruncated(t)
}

// RepairNeeded returns the repair a stuck story needs, if any.
func RepairNeeded(s Story) (RepairReason, bool) {
	switch {
	case NeedsChoices(s):
		return ReasonNeedChoices, true
	case NeedsFinish(s):
		return ReasonNeedFinish, true
	}
	return "", false
}

// CanAdvanceChapter reports whether the reader may move to the next chapter.
func CanAdvanceChapter(s Story) bool {
	return s.Stage == StageConcluded &&
		s.Status == StatusActive &&
		!NeedsFinish(s)
}
