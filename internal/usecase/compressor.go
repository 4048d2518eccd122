package usecase

import (
	"strings"

	"companion-chat/internal/domain/model"
)

const (
	DefaultRecentMessages = 4
	DefaultSummarySnippet = 50
)

// HistoryCompressor renders prior turns into a bounded context block: the
// most recent messages verbatim, everything older folded into one summary
// line of content prefixes. It is deterministic and never calls a model.
type HistoryCompressor struct {
	recent  int
	snippet int
}

func NewHistoryCompressor(recent, snippet int) *HistoryCompressor {
	if recent <= 0 {
		recent = DefaultRecentMessages
	}
	if snippet <= 0 {
		snippet = DefaultSummarySnippet
	}
	return &HistoryCompressor{recent: recent, snippet: snippet}
}

func (c *HistoryCompressor) Compress(history []model.Message) string {
	if len(history) == 0 {
		return ""
	}

	lines := make([]string, 0, c.recent+1)
	recent := history
	if len(history) > c.recent {
		older := history[:len(history)-c.recent]
		recent = history[len(history)-c.recent:]

		snippets := make([]string, 0, len(older))
		for _, m := range older {
			snippets = append(snippets, prefix(m.Content, c.snippet))
		}
		lines = append(lines, "[Earlier conversation covered: "+strings.Join(snippets, ", ")+"]")
	}
	for _, m := range recent {
		lines = append(lines, m.Role.Label()+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// prefix returns the first n characters of s.
func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
