package repository

import (
	"context"
	"time"

	"companion-chat/internal/domain/model"
)

// -----------------------------
// Conversation sessions
// -----------------------------

// SessionSnapshotRepository persists the whole session store as one record.
// Load returns an empty, non-nil map when nothing has been saved yet.
type SessionSnapshotRepository interface {
	Load(ctx context.Context) (map[string]*model.Session, error)
	Save(ctx context.Context, snapshot map[string]*model.Session) error
}

// RateLimiter counts requests per key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
