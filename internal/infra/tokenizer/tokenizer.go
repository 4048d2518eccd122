// Package tokenizer counts BPE tokens for prompt diagnostics. The encoding is
// loaded lazily; when it cannot be loaded (no network for the BPE ranks,
// unknown name) Count reports ok=false and callers keep their estimate.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultEncoding = "cl100k_base"

type Counter struct {
	name string
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func New(encoding string) *Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Counter{name: encoding}
}

func (c *Counter) load() {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.name)
		if err == nil {
			c.enc = enc
		}
	})
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) (n int, ok bool) {
	if c == nil {
		return 0, false
	}
	c.load()
	if c.enc == nil {
		return 0, false
	}
	return len(c.enc.Encode(text, nil, nil)), true
}

// Estimate is the character heuristic: characters/4 rounded up.
func Estimate(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
