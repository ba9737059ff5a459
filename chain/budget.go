package chain

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tokenizer used to measure prompt text.
const DefaultEncoding = "cl100k_base"

// charsPerToken approximates token counts when no tokenizer is available.
const charsPerToken = 4

// Budget trims file text to a token limit, keeping the tail nearest the
// cursor. The tokenizer is loaded on first use.
type Budget struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewBudget returns a Budget that measures text with the named encoding.
func NewBudget(encoding string) *Budget {
	return &Budget{encoding: encoding}
}

func (b *Budget) tokenizer() *tiktoken.Tiktoken {
	if b.encoding == "" {
		return nil
	}
	b.once.Do(func() {
		enc, err := tiktoken.GetEncoding(b.encoding)
		if err != nil {
			slog.Warn("tokenizer unavailable, estimating by characters", "encoding", b.encoding, "error", err)
			return
		}
		b.enc = enc
	})
	return b.enc
}

// Trim returns the trailing max tokens of text. A non-positive max disables trimming.
func (b *Budget) Trim(text string, max int) string {
	if max <= 0 || text == "" {
		return text
	}
	if b != nil {
		if enc := b.tokenizer(); enc != nil {
			tokens := enc.Encode(text, nil, nil)
			if len(tokens) <= max {
				return text
			}
			return dropPartialRune(enc.Decode(tokens[len(tokens)-max:]))
		}
	}

	limit := max * charsPerToken
	if len(text) <= limit {
		return text
	}
	return dropPartialRune(text[len(text)-limit:])
}

// dropPartialRune strips continuation bytes left at the start of s when a cut
// landed inside a multi-byte character.
func dropPartialRune(s string) string {
	i := 0
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
