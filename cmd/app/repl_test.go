package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"companion-chat/internal/infra/adapters/ai"
	"companion-chat/internal/infra/db/filestore"
	"companion-chat/internal/usecase"
)

func TestRunREPL(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/conversations.json"
	store := usecase.NewSessionStore(ctx, filestore.NewSnapshotRepo(path), usecase.StoreOptions{Sync: true}, nil)
	backend := ai.NewNoopAIAdapter(0)
	chat := usecase.NewChatUseCase(
		store,
		usecase.NewEngagementStrategist(nil),
		usecase.NewHistoryCompressor(0, 0),
		usecase.NewPromptComposer("", nil, nil),
		backend,
		usecase.ChatSettings{},
		nil,
	)

	in := strings.NewReader("hello there\n\n/history\n/models\n/quit\nnever read\n")
	var out bytes.Buffer
	if err := runREPL(ctx, chat, backend, "", in, &out); err != nil {
		t.Fatalf("runREPL: %v", err)
	}

	got := out.String()
	for _, want := range []string{"(conversation conv_", "You said: hello there", "User: hello there", "Assistant: You said: hello there", "noop-echo  Echo model for local development"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "never read") {
		t.Error("input after /quit must be ignored")
	}

	// reload from disk
	reloaded := usecase.NewSessionStore(ctx, filestore.NewSnapshotRepo(path), usecase.StoreOptions{Sync: true}, nil)
	if reloaded.Stats() != 1 {
		t.Fatalf("want 1 persisted session, got %d", reloaded.Stats())
	}
}
