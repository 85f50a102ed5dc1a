package engine

import "strings"

// applySegment installs seg as the result of a request from stage from and
// reports whether the story is left stuck.
func applySegment(s *Story, from Stage, seg Segment, chapterCap int) bool {
	next, err := NextStage(from)
	if err != nil {
		return false
	}
	s.FullText = strings.TrimSpace(seg.Text)
	s.Stage = next
	s.clearPending()
	// choices without text would leave a pause nothing can repair
	if next.IsPause() && s.FullText != "" && len(seg.Choices) == ChoicesPerPause {
		s.installChoices(seg.Choices)
	}
	if next == StageConcluded && s.Chapter >= chapterCap {
		s.Status = StatusCompleted
	}
	_, stuck := RepairNeeded(*s)
	return stuck
}

// applyRepair appends a continuation to s. It never removes text.
func applyRepair(s *Story, reason RepairReason, seg Segment) {
	if t := strings.TrimSpace(seg.Text); t != "" {
		if cur := strings.TrimSpace(s.FullText); cur != "" {
			s.FullText = cur + "\n\n" + t
		} else {
			s.FullText = t
		}
	}
	if reason == ReasonNeedChoices && s.Stage.IsPause() && !s.HasPendingChoices() &&
		len(seg.Choices) == ChoicesPerPause {
		s.installChoices(seg.Choices)
	}
}

// openChapter archives the conclusion and resets choice state for the next
// chapter. The caller requests its opening segment.
func openChapter(s *Story, now timeFunc) {
	ArchiveCurrentAsPage(s, PageLabel(s.Chapter, StageConcluded), "", now())
	s.Chapter++
	s.Stage = StageRequested
	s.FullText = ""
	s.clearPending()
}
