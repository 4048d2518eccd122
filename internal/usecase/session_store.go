package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"companion-chat/internal/domain/model"
	"companion-chat/internal/domain/ports/repository"
	"companion-chat/internal/infra/metrics"
	"companion-chat/internal/infra/worker"
)

const (
	sessionIDPrefix = "conv_"
	messageIDPrefix = "msg_"
)

// StoreOptions tunes a SessionStore. Zero values pick the defaults.
type StoreOptions struct {
	MaxMessages int // sliding window per session, default 50
	QueueLen    int // pending snapshot writes before new ones are coalesced, default 1
	// Sync writes the snapshot inline on every append instead of on the
	// background worker.
	Sync bool
	Now  func() time.Time
}

type sessionEntry struct {
	mu      sync.Mutex
	session *model.Session
}

// SessionStore keeps every conversation in memory and mirrors the whole set to
// a snapshot repository after each append. The in-memory state is
// authoritative for the lifetime of the process.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	repo      repository.SessionSnapshotRepository
	persistMu sync.Mutex
	pool      *worker.Pool
	stopPool  context.CancelFunc

	max int
	now func() time.Time
	ids *idGenerator
	log *zerolog.Logger
}

// NewSessionStore loads the persisted snapshot and returns a ready store.
// An unreadable snapshot is logged and the store starts empty.
func NewSessionStore(ctx context.Context, repo repository.SessionSnapshotRepository, opts StoreOptions, logger *zerolog.Logger) *SessionStore {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 50
	}
	if opts.QueueLen <= 0 {
		opts.QueueLen = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	l := logger.With().Str("component", "session_store").Logger()

	s := &SessionStore{
		sessions: make(map[string]*sessionEntry),
		repo:     repo,
		max:      opts.MaxMessages,
		now:      opts.Now,
		ids:      newIDGenerator(),
		log:      &l,
	}
	s.load(ctx)

	if !opts.Sync {
		poolCtx, cancel := context.WithCancel(context.Background())
		s.pool = worker.NewPool(1, opts.QueueLen, &l)
		s.pool.Start(poolCtx)
		s.stopPool = cancel
	}
	return s
}

func (s *SessionStore) load(ctx context.Context) {
	snap, err := s.repo.Load(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("session snapshot unreadable, starting with an empty store")
		return
	}
	for id, sess := range snap {
		if sess == nil {
			continue
		}
		if sess.ID == "" {
			sess.ID = id
		}
		if sess.Messages == nil {
			sess.Messages = make([]model.Message, 0, 8)
		}
		if len(sess.Messages) > s.max {
			sess.Messages = sess.Messages[len(sess.Messages)-s.max:]
		}
		s.sessions[id] = &sessionEntry{session: sess}
	}
	metrics.SetSessions(len(s.sessions))
	s.log.Info().Int("sessions", len(s.sessions)).Msg("session snapshot loaded")
}

// entry returns the entry for id, creating an empty session when missing.
func (s *SessionStore) entry(id string, now time.Time) (e *sessionEntry, created bool) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return e, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[id]; ok {
		return e, false
	}
	e = &sessionEntry{session: model.NewSession(id, now)}
	s.sessions[id] = e
	metrics.SetSessions(len(s.sessions))
	return e, true
}

// GetOrCreate returns a copy of the session with the given id, creating it
// when unknown. An empty id always creates a session with a fresh id.
func (s *SessionStore) GetOrCreate(ctx context.Context, id string) *model.Session {
	now := s.now()
	if id == "" {
		id = s.ids.New(sessionIDPrefix, now)
	}
	e, created := s.entry(id, now)

	e.mu.Lock()
	defer e.mu.Unlock()
	if created {
		s.log.Debug().Str("conversation_id", id).Msg("session created")
	} else {
		e.session.Touch(now)
	}
	return e.session.Clone()
}

// Append records a new message on the session and schedules a snapshot write.
func (s *SessionStore) Append(ctx context.Context, id string, role model.Role, content string) model.Message {
	m, _ := s.appendAndSnapshot(ctx, id, role, content)
	return m
}

// appendAndSnapshot appends under the session lock and also returns the
// windowed history without the new message, as the store holds it after the
// append.
func (s *SessionStore) appendAndSnapshot(ctx context.Context, id string, role model.Role, content string) (model.Message, []model.Message) {
	now := s.now()
	e, _ := s.entry(id, now)

	e.mu.Lock()
	m := model.Message{
		ID:        s.ids.New(messageIDPrefix, now),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	e.session.Append(m, s.max)
	n := len(e.session.Messages) - 1
	prior := make([]model.Message, n)
	copy(prior, e.session.Messages[:n])
	e.mu.Unlock()

	s.schedulePersist(ctx)
	return m, prior
}

// History returns a copy of the session's messages, or an empty slice.
func (s *SessionStore) History(ctx context.Context, id string) []model.Message {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return []model.Message{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Message, len(e.session.Messages))
	copy(out, e.session.Messages)
	return out
}

// Stats returns how many sessions are held in memory.
func (s *SessionStore) Stats() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Flush writes the current snapshot synchronously.
func (s *SessionStore) Flush(ctx context.Context) error {
	return s.persist(ctx)
}

// Close stops the background writer and flushes one final snapshot.
func (s *SessionStore) Close(ctx context.Context) error {
	if s.pool != nil {
		s.pool.Stop()
		s.stopPool()
	}
	return s.Flush(ctx)
}

func (s *SessionStore) schedulePersist(ctx context.Context) {
	if s.pool == nil {
		_ = s.persist(ctx)
		return
	}
	err := s.pool.Submit(func(ctx context.Context) error {
		_ = s.persist(ctx)
		return nil
	})
	if errors.Is(err, worker.ErrQueueFull) {
		// a queued write will pick up this state
		metrics.IncPersistWrite("coalesced")
	}
}

// persist snapshots under persistMu so writes land in the order the state
// was observed.
func (s *SessionStore) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snap := s.snapshot()
	if err := s.repo.Save(ctx, snap); err != nil {
		metrics.IncPersistWrite("failed")
		s.log.Error().Err(err).Int("sessions", len(snap)).Msg("session snapshot write failed")
		return err
	}
	metrics.IncPersistWrite("ok")
	return nil
}

func (s *SessionStore) snapshot() map[string]*model.Session {
	s.mu.RLock()
	entries := make(map[string]*sessionEntry, len(s.sessions))
	for id, e := range s.sessions {
		entries[id] = e
	}
	s.mu.RUnlock()

	out := make(map[string]*model.Session, len(entries))
	for id, e := range entries {
		e.mu.Lock()
		out[id] = e.session.Clone()
		e.mu.Unlock()
	}
	return out
}

// idGenerator issues ULID based identifiers: a millisecond timestamp plus
// monotonic entropy, so ids never repeat within the process.
type idGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDGenerator() *idGenerator {
	return &idGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *idGenerator) New(prefix string, t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return prefix + ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}
