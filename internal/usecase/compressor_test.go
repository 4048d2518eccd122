package usecase

import (
	"fmt"
	"strings"
	"testing"

	"companion-chat/internal/domain/model"
)

func msgs(contents ...string) []model.Message {
	out := make([]model.Message, 0, len(contents))
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		out = append(out, model.Message{ID: fmt.Sprintf("m%d", i), Role: role, Content: c})
	}
	return out
}

func TestHistoryCompressor_Compress(t *testing.T) {
	c := NewHistoryCompressor(0, 0)

	t.Run("empty history renders nothing", func(t *testing.T) {
		if got := c.Compress(nil); got != "" {
			t.Fatalf("want empty string, got %q", got)
		}
	})

	t.Run("at threshold everything is verbatim", func(t *testing.T) {
		got := c.Compress(msgs("hi", "hello!", "how are you", "fine"))
		want := "User: hi\nAssistant: hello!\nUser: how are you\nAssistant: fine"
		if got != want {
			t.Fatalf("want %q, got %q", want, got)
		}
	})

	t.Run("older messages fold into one summary line", func(t *testing.T) {
		long := strings.Repeat("x", 80)
		got := c.Compress(msgs(long, "second", "a", "b", "c", "d"))
		lines := strings.Split(got, "\n")
		if len(lines) != 5 {
			t.Fatalf("want 1 summary + 4 verbatim lines, got %d: %q", len(lines), got)
		}
		wantSummary := "[Earlier conversation covered: " + strings.Repeat("x", 50) + ", second]"
		if lines[0] != wantSummary {
			t.Fatalf("summary mismatch:\nwant %q\ngot  %q", wantSummary, lines[0])
		}
		if lines[1] != "User: a" || lines[4] != "Assistant: d" {
			t.Fatalf("recent tail mismatch: %q", lines[1:])
		}
	})

	t.Run("snippets count characters not bytes", func(t *testing.T) {
		small := NewHistoryCompressor(1, 3)
		got := small.Compress(msgs("héllo", "tail"))
		if !strings.HasPrefix(got, "[Earlier conversation covered: hél]") {
			t.Fatalf("unexpected summary %q", got)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		h := msgs("one", "two", "three", "four", "five", "six", "seven")
		first := c.Compress(h)
		for i := 0; i < 10; i++ {
			if got := c.Compress(h); got != first {
				t.Fatalf("run %d differs", i)
			}
		}
	})
}
