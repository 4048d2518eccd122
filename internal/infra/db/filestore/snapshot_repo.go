package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"companion-chat/internal/domain"
	"companion-chat/internal/domain/model"
	"companion-chat/internal/domain/ports/repository"
)

var _ repository.SessionSnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo keeps the whole session store in one JSON file. Writes go to a
// temp file in the same directory and are renamed over the target.
type SnapshotRepo struct {
	path string
}

func NewSnapshotRepo(path string) *SnapshotRepo {
	return &SnapshotRepo{path: path}
}

// Load returns an empty map when the file does not exist yet.
func (r *SnapshotRepo) Load(ctx context.Context) (map[string]*model.Session, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*model.Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrPersistence, r.path, err)
	}
	if len(data) == 0 {
		return map[string]*model.Session{}, nil
	}

	var sessions map[string]*model.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrPersistence, r.path, err)
	}
	if sessions == nil {
		sessions = map[string]*model.Session{}
	}
	return sessions, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, snapshot map[string]*model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: create %s: %w", domain.ErrPersistence, dir, err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", domain.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: temp file: %w", domain.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write snapshot: %w", domain.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close snapshot: %w", domain.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", domain.ErrPersistence, r.path, err)
	}
	return nil
}
