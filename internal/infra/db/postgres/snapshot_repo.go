package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"companion-chat/internal/domain"
	"companion-chat/internal/domain/model"
	"companion-chat/internal/domain/ports/repository"
)

var _ repository.SessionSnapshotRepository = (*SnapshotRepo)(nil)

// undefined_table
const codeUndefinedTable = "42P01"

// querier is the subset of *pgxpool.Pool the repo needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// SnapshotRepo keeps the whole session map in one JSONB row keyed by name.
type SnapshotRepo struct {
	db   querier
	name string
}

func NewSnapshotRepo(db querier, name string) *SnapshotRepo {
	return &SnapshotRepo{db: db, name: name}
}

// EnsureSchema creates the snapshot table when missing.
func (r *SnapshotRepo) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS conversation_snapshots (
  name       TEXT PRIMARY KEY,
  data       JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`
	if _, err := r.db.Exec(ctx, q); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (r *SnapshotRepo) Load(ctx context.Context) (map[string]*model.Session, error) {
	const q = `SELECT data FROM conversation_snapshots WHERE name = $1;`
	var data []byte
	err := r.db.QueryRow(ctx, q, r.name).Scan(&data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable) {
			return map[string]*model.Session{}, nil
		}
		return nil, fmt.Errorf("%w: load snapshot %s: %w", domain.ErrPersistence, r.name, err)
	}

	var sessions map[string]*model.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot %s: %w", domain.ErrPersistence, r.name, err)
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
	const q = `
INSERT INTO conversation_snapshots (name, data, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (name) DO UPDATE SET
  data = EXCLUDED.data,
  updated_at = EXCLUDED.updated_at;`
	if _, err := r.db.Exec(ctx, q, r.name, data); err != nil {
		return fmt.Errorf("%w: save snapshot %s: %w", domain.ErrPersistence, r.name, err)
	}
	return nil
}
