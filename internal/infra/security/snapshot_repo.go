package security

import (
	"context"
	"fmt"

	"companion-chat/internal/domain/model"
	"companion-chat/internal/domain/ports/repository"
)

var _ repository.SessionSnapshotRepository = (*EncryptedSnapshotRepo)(nil)

// EncryptedSnapshotRepo encrypts message content before it reaches the inner
// repository. Ids, roles and timestamps stay readable.
type EncryptedSnapshotRepo struct {
	inner repository.SessionSnapshotRepository
	enc   *EncryptionService
}

func NewEncryptedSnapshotRepo(inner repository.SessionSnapshotRepository, enc *EncryptionService) *EncryptedSnapshotRepo {
	return &EncryptedSnapshotRepo{inner: inner, enc: enc}
}

func (r *EncryptedSnapshotRepo) Load(ctx context.Context) (map[string]*model.Session, error) {
	snap, err := r.inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	for id, s := range snap {
		if s == nil {
			continue
		}
		for i := range s.Messages {
			pt, err := r.enc.Decrypt(s.Messages[i].Content)
			if err != nil {
				return nil, fmt.Errorf("decrypt %s/%s: %w", id, s.Messages[i].ID, err)
			}
			s.Messages[i].Content = pt
		}
	}
	return snap, nil
}

// Save encrypts copies; the caller's snapshot is left untouched.
func (r *EncryptedSnapshotRepo) Save(ctx context.Context, snapshot map[string]*model.Session) error {
	out := make(map[string]*model.Session, len(snapshot))
	for id, s := range snapshot {
		if s == nil {
			continue
		}
		c := s.Clone()
		for i := range c.Messages {
			ct, err := r.enc.Encrypt(c.Messages[i].Content)
			if err != nil {
				return fmt.Errorf("encrypt %s/%s: %w", id, c.Messages[i].ID, err)
			}
			c.Messages[i].Content = ct
		}
		out[id] = c
	}
	return r.inner.Save(ctx, out)
}
