package text

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DaanHessen/storyloom/internal/engine"
)

// expectation is the shape a reply must have.
type expectation struct {
	choices    bool
	allowEmpty bool
}

func segmentExpectation(from engine.Stage) expectation {
	return expectation{choices: engine.ExpectsChoices(from)}
}

func continuationExpectation(reason engine.RepairReason) expectation {
	if reason == engine.ReasonNeedChoices {
		return expectation{choices: true, allowEmpty: true}
	}
	return expectation{}
}

type reply struct {
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
}

// DecodeSegment parses a raw model reply. A reply that is readable but has
// the wrong shape yields a *engine.MalformedResponseError with the salvaged
// parts.
func DecodeSegment(raw string, want expectation) (engine.Segment, error) {
	var r reply
	body := extractJSON(raw)
	if body == "" || json.Unmarshal([]byte(body), &r) != nil {
		// prose without the envelope is still usable text
		r = reply{Text: stripFences(raw)}
	}

	seg := engine.Segment{Text: strings.TrimSpace(r.Text)}
	for _, c := range r.Choices {
		if c = strings.TrimSpace(c); c != "" {
			seg.Choices = append(seg.Choices, c)
		}
	}
	if !want.choices {
		seg.Choices = nil
	}

	switch {
	case seg.Text == "" && !want.allowEmpty:
		return engine.Segment{}, &engine.MalformedResponseError{Reason: "empty text"}
	case want.choices && len(seg.Choices) != engine.ChoicesPerPause:
		return engine.Segment{}, &engine.MalformedResponseError{
			Reason:  fmt.Sprintf("expected %d choices, got %d", engine.ChoicesPerPause, len(seg.Choices)),
			Partial: engine.Segment{Text: seg.Text},
		}
	}
	return seg, nil
}

// extractJSON returns the outermost object in s, tolerating code fences and
// chatter around it.
func extractJSON(s string) string {
	s = stripFences(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
