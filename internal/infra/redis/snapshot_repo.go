package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"companion-chat/internal/domain"
	"companion-chat/internal/domain/model"
	"companion-chat/internal/domain/ports/repository"
)

var _ repository.SessionSnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo stores the session snapshot as one JSON string value.
type SnapshotRepo struct {
	client RedisClient
	key    string
}

func NewSnapshotRepo(client RedisClient, name string) *SnapshotRepo {
	return &SnapshotRepo{client: client, key: SnapshotKey(name)}
}

func SnapshotKey(name string) string {
	return "chat_snapshot:" + name
}

func (r *SnapshotRepo) Load(ctx context.Context) (map[string]*model.Session, error) {
	data, err := r.client.Get(ctx, r.key)
	if errors.Is(err, redis.Nil) {
		return map[string]*model.Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get %s: %w", domain.ErrPersistence, r.key, err)
	}

	var sessions map[string]*model.Session
	if err := json.Unmarshal([]byte(data), &sessions); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrPersistence, r.key, err)
	}
	if sessions == nil {
		sessions = map[string]*model.Session{}
	}
	return sessions, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, snapshot map[string]*model.Session) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", domain.ErrPersistence, err)
	}
	// no expiry: sessions live until retention is handled elsewhere
	if err := r.client.Set(ctx, r.key, data, 0); err != nil {
		return fmt.Errorf("%w: redis set %s: %w", domain.ErrPersistence, r.key, err)
	}
	return nil
}
