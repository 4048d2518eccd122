package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"companion-chat/internal/domain"
	"companion-chat/internal/domain/model"
)

func newTestChat(ai *fakeAI) (*chatUC, *SessionStore) {
	store := newSyncStore(newMemSnapshotRepo(), 50)
	uc := NewChatUseCase(
		store,
		NewEngagementStrategist(nil),
		NewHistoryCompressor(0, 0),
		NewPromptComposer("", nil, nil),
		ai,
		ChatSettings{Model: "gpt-4o-mini"},
		nil,
	)
	return uc, store
}

func TestChatUC_SendMessage_FirstTurn(t *testing.T) {
	ai := &fakeAI{fragments: []string{"  Hi there", ", how", " are you?\n"}}
	uc, store := newTestChat(ai)
	ctx := context.Background()

	res, err := uc.SendMessage(ctx, "", "I feel tired")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if res.Reply != "Hi there, how are you?" {
		t.Fatalf("fragments not concatenated and trimmed: %q", res.Reply)
	}
	if res.ConversationID == "" || res.MessageID == "" {
		t.Fatalf("ids missing: %+v", res)
	}

	prompt := ai.lastPrompt()
	if !strings.Contains(prompt, HintStart.Text) {
		t.Fatalf("first turn must use the start hint:\n%s", prompt)
	}
	if strings.Contains(prompt, HintEmotional.Text) {
		t.Fatal("emotional hint must not override the start hint")
	}
	if strings.Contains(prompt, "Conversation history:") {
		t.Fatal("first turn must not carry a history block")
	}

	hist := store.History(ctx, res.ConversationID)
	if len(hist) != 2 || hist[0].Role != model.RoleUser || hist[1].Role != model.RoleAssistant {
		t.Fatalf("unexpected history %+v", hist)
	}
	if hist[1].ID != res.MessageID {
		t.Fatalf("message id mismatch: %s vs %s", hist[1].ID, res.MessageID)
	}
}

func TestChatUC_SendMessage_SeventhPromptSummarizes(t *testing.T) {
	ai := &fakeAI{fragments: []string{"a reply that is long enough to not look short at all"}}
	uc, _ := newTestChat(ai)
	ctx := context.Background()

	res, err := uc.SendMessage(ctx, "", "message number 1")
	if err != nil {
		t.Fatal(err)
	}
	id := res.ConversationID
	// six submitted messages so far means twelve stored messages before turn 7
	for i := 2; i <= 6; i++ {
		if _, err := uc.SendMessage(ctx, id, fmt.Sprintf("message number %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := uc.SendMessage(ctx, id, "message number 7"); err != nil {
		t.Fatal(err)
	}

	prompt := ai.lastPrompt()
	start := strings.Index(prompt, "Conversation history:\n")
	end := strings.Index(prompt, "\n\nUser: message number 7")
	if start < 0 || end < 0 {
		t.Fatalf("history block not found:\n%s", prompt)
	}
	block := prompt[start+len("Conversation history:\n") : end]
	lines := strings.Split(block, "\n")
	if len(lines) != 5 {
		t.Fatalf("want 1 summary + 4 verbatim lines, got %d:\n%s", len(lines), block)
	}
	if !strings.HasPrefix(lines[0], "[Earlier conversation covered: message number 1, ") {
		t.Fatalf("oldest messages must be summarized, got %q", lines[0])
	}
	if strings.Count(lines[0], "message number") != 4 {
		t.Fatalf("summary should cover the four oldest user turns: %q", lines[0])
	}
	if lines[1] != "User: message number 5" || lines[3] != "User: message number 6" {
		t.Fatalf("recent lines mismatch: %q", lines[1:])
	}
}

func TestChatUC_SendMessage_Validation(t *testing.T) {
	ai := &fakeAI{fragments: []string{"ok"}}
	uc, store := newTestChat(ai)
	ctx := context.Background()

	res, err := uc.SendMessage(ctx, "", "hello")
	if err != nil {
		t.Fatal(err)
	}
	before := store.History(ctx, res.ConversationID)

	for _, in := range []string{"", "   \n\t"} {
		_, err := uc.SendMessage(ctx, res.ConversationID, in)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("input %q: want ErrValidation, got %v", in, err)
		}
	}
	after := store.History(ctx, res.ConversationID)
	if len(after) != len(before) {
		t.Fatalf("session changed on invalid input: %d -> %d", len(before), len(after))
	}
	if sessions := store.Stats(); sessions != 1 {
		t.Fatalf("invalid input must not create sessions, have %d", sessions)
	}
}

func TestChatUC_SendMessage_GenerationFailureKeepsUserTurn(t *testing.T) {
	boom := errors.New("provider unavailable")
	ai := &fakeAI{fragments: []string{"partial"}, err: boom}
	uc, store := newTestChat(ai)
	ctx := context.Background()

	_, err := uc.SendMessage(ctx, "conv-x", "are you there?")
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("want ErrGeneration, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause should stay inspectable, got %v", err)
	}

	hist := store.History(ctx, "conv-x")
	if len(hist) != 1 || hist[0].Content != "are you there?" || hist[0].Role != model.RoleUser {
		t.Fatalf("user turn must survive a failed generation: %+v", hist)
	}
}

func TestChatUC_SendMessage_EmptyReplyIsGenerationError(t *testing.T) {
	uc, _ := newTestChat(&fakeAI{fragments: []string{"  ", "\n"}})
	if _, err := uc.SendMessage(context.Background(), "", "hello"); !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("want ErrGeneration, got %v", err)
	}
}

func TestChatUC_SendMessage_Timeout(t *testing.T) {
	store := newSyncStore(newMemSnapshotRepo(), 50)
	uc := NewChatUseCase(store, NewEngagementStrategist(nil), NewHistoryCompressor(0, 0),
		NewPromptComposer("", nil, nil), &slowAI{}, ChatSettings{Timeout: 20 * time.Millisecond}, nil)

	_, err := uc.SendMessage(context.Background(), "slow", "hello")
	if !errors.Is(err, domain.ErrGeneration) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want generation error caused by deadline, got %v", err)
	}
}

func TestChatUC_History(t *testing.T) {
	uc, _ := newTestChat(&fakeAI{fragments: []string{"ok"}})
	ctx := context.Background()

	if _, err := uc.History(ctx, " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	got, err := uc.History(ctx, "unknown")
	if err != nil || len(got) != 0 {
		t.Fatalf("unknown id: got %v, %v", got, err)
	}

	res, _ := uc.SendMessage(ctx, "", "hello")
	got, _ = uc.History(ctx, res.ConversationID)
	if len(got) != 2 {
		t.Fatalf("want 2 messages, got %d", len(got))
	}
}

func TestChatUC_SendMessage_SixStoredMessagesThenSeventh(t *testing.T) {
	ai := &fakeAI{err: errors.New("offline")}
	uc, store := newTestChat(ai)
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		if _, err := uc.SendMessage(ctx, "six", fmt.Sprintf("note %d", i)); !errors.Is(err, domain.ErrGeneration) {
			t.Fatalf("turn %d: want ErrGeneration, got %v", i, err)
		}
	}
	if n := len(store.History(ctx, "six")); n != 6 {
		t.Fatalf("want 6 stored user messages, got %d", n)
	}

	ai.mu.Lock()
	ai.err, ai.fragments = nil, []string{"back online"}
	ai.mu.Unlock()
	if _, err := uc.SendMessage(ctx, "six", "note 7"); err != nil {
		t.Fatal(err)
	}

	want := "Conversation history:\n" +
		"[Earlier conversation covered: note 1, note 2]\n" +
		"User: note 3\nUser: note 4\nUser: note 5\nUser: note 6\n\n" +
		"User: note 7\nAssistant:"
	if !strings.HasSuffix(ai.lastPrompt(), want) {
		t.Fatalf("unexpected prompt tail:\n%s", ai.lastPrompt())
	}
}

func TestChatUC_SendMessage_PromptSkipsMessagesOutsideWindow(t *testing.T) {
	ai := &fakeAI{fragments: []string{"a reply that is long enough to not look short at all"}}
	store := newSyncStore(newMemSnapshotRepo(), 4)
	uc := NewChatUseCase(store, NewEngagementStrategist(nil), NewHistoryCompressor(0, 0),
		NewPromptComposer("", nil, nil), ai, ChatSettings{}, nil)
	ctx := context.Background()

	for _, msg := range []string{"the oldest thing I said", "the second thing I said"} {
		if _, err := uc.SendMessage(ctx, "small", msg); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := uc.SendMessage(ctx, "small", "the third thing I said"); err != nil {
		t.Fatal(err)
	}

	prompt := ai.lastPrompt()
	if strings.Contains(prompt, "the oldest thing I said") {
		t.Fatalf("message evicted by the window leaked into the prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "User: the second thing I said") {
		t.Fatalf("windowed history missing:\n%s", prompt)
	}
	hist := store.History(ctx, "small")
	if len(hist) != 4 || hist[len(hist)-1].Role != model.RoleAssistant {
		t.Fatalf("unexpected stored window %+v", hist)
	}
}
