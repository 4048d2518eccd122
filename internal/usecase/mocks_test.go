package usecase

import (
	"context"
	"iter"
	"sync"
	"time"

	"companion-chat/internal/domain/model"
	"companion-chat/internal/domain/ports/adapter"
)

// memSnapshotRepo is a small in-memory snapshot repository used by unit tests.
type memSnapshotRepo struct {
	mu      sync.Mutex
	data    map[string]*model.Session
	saves   int
	loadErr error // used by tests to simulate a corrupt record
	saveErr error // used by tests to simulate storage failures
}

func newMemSnapshotRepo() *memSnapshotRepo {
	return &memSnapshotRepo{data: map[string]*model.Session{}}
}

func (m *memSnapshotRepo) Load(ctx context.Context) (map[string]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]*model.Session, len(m.data))
	for id, s := range m.data {
		out[id] = s.Clone()
	}
	return out, nil
}

func (m *memSnapshotRepo) Save(ctx context.Context, snapshot map[string]*model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = make(map[string]*model.Session, len(snapshot))
	for id, s := range snapshot {
		m.data[id] = s.Clone()
	}
	return nil
}

func (m *memSnapshotRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// fakeAI streams the configured fragments and records every prompt it sees.
type fakeAI struct {
	mu        sync.Mutex
	fragments []string
	err       error // returned after the fragments
	prompts   []string
}

var _ adapter.CompletionService = (*fakeAI)(nil)

func (f *fakeAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gpt-4o-mini"}, nil
}

func (f *fakeAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model}, nil
}

func (f *fakeAI) Stream(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	frags, err := f.fragments, f.err
	f.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, fr := range frags {
			if !yield(fr, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

func (f *fakeAI) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// stepClock advances by one millisecond on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func newSyncStore(repo *memSnapshotRepo, max int) *SessionStore {
	return NewSessionStore(context.Background(), repo, StoreOptions{
		MaxMessages: max,
		Sync:        true,
		Now:         stepClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)),
	}, nil)
}

// slowAI blocks until the context is done.
type slowAI struct{ fakeAI }

func (s *slowAI) Stream(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		<-ctx.Done()
		yield("", ctx.Err())
	}
}
