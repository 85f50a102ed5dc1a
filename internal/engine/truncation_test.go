package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLikelyTruncated(t *testing.T) {
	long := strings.Repeat("word ", 50)
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"short without punctuation", "and then the", false},
		{"exactly the threshold", strings.Repeat("a", 200), false},
		{"long ending mid word", long + "and then th", true},
		{"long ending with period", long + "end.", false},
		{"long ending with exclamation", long + "run!", false},
		{"long ending with question", long + "why?", false},
		{"long ending with quote", long + `"go."`, false},
		{"long ending with curly quote", long + "“go.”", false},
		{"long ending with guillemet", long + "«vai»", false},
		{"long ending with comma", long + "then,", true},
		{"possessive apostrophe reads as closing quote", long + "the dogs’", false},
		{"trailing whitespace is ignored", long + "end.  \n\t", false},
		{"leading whitespace does not count", "   " + strings.Repeat("b", 199), false},
		{"multibyte runes are counted once", strings.Repeat("é", 201), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsLikelyTruncated(tc.text))
		})
	}
}

func TestNeedsPredicates(t *testing.T) {
	st := storyAt(StagePause1, 1)
	assert.False(t, NeedsChoices(st))
	st.clearPending()
	assert.True(t, NeedsChoices(st))

	reason, ok := RepairNeeded(st)
	assert.True(t, ok)
	assert.Equal(t, ReasonNeedChoices, reason)

	end := storyAt(StageConcluded, 1)
	assert.False(t, NeedsFinish(end))
	end.FullText = ""
	assert.True(t, NeedsFinish(end))

	_, ok = RepairNeeded(storyAt(StageRequested, 1))
	assert.False(t, ok)
}
