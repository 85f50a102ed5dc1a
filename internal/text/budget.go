package text

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Budget counts prompt tokens and trims context to a limit.
type Budget struct {
	limit int
	enc   *tiktoken.Tiktoken
}

// NewBudget uses the model's encoding, falling back to cl100k_base, and to a
// rune estimate when no encoding can be loaded.
func NewBudget(model string, limit int) *Budget {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		enc = nil
	}
	return &Budget{limit: limit, enc: enc}
}

func (b *Budget) Count(s string) int {
	if b.enc == nil {
		return utf8.RuneCountInString(s)/4 + 1
	}
	return len(b.enc.Encode(s, nil, nil))
}

// Tail returns the longest suffix of parts that fits the limit. The last
// part is always kept.
func (b *Budget) Tail(parts []string) []string {
	if len(parts) == 0 || b.limit <= 0 {
		return parts
	}
	used := 0
	start := len(parts)
	for i := len(parts) - 1; i >= 0; i-- {
		n := b.Count(parts[i])
		if used+n > b.limit && i < len(parts)-1 {
			break
		}
		used += n
		start = i
	}
	return parts[start:]
}
