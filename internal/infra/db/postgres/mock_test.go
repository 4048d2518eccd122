//go:build !integration

package postgres

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// memDB emulates the conversation_snapshots table behind the querier interface.
type memDB struct {
	mu      sync.Mutex
	rows    map[string][]byte
	noTable bool
	execErr error
	execs   []string
}

func newMemDB() *memDB { return &memDB{rows: map[string][]byte{}} }

func (m *memDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs = append(m.execs, sql)
	if m.execErr != nil {
		return nil, m.execErr
	}
	switch {
	case strings.Contains(sql, "CREATE TABLE"):
		m.noTable = false
	case strings.Contains(sql, "INSERT INTO conversation_snapshots"):
		m.rows[args[0].(string)] = args[1].([]byte)
	}
	return pgconn.CommandTag("OK"), nil
}

func (m *memDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.noTable {
		return rowFunc(func(...interface{}) error {
			return &pgconn.PgError{Code: codeUndefinedTable, Message: `relation "conversation_snapshots" does not exist`}
		})
	}
	data, ok := m.rows[args[0].(string)]
	return rowFunc(func(dest ...interface{}) error {
		if !ok {
			return pgx.ErrNoRows
		}
		p, isBytes := dest[0].(*[]byte)
		if !isBytes {
			return errors.New("unexpected scan target")
		}
		*p = append([]byte(nil), data...)
		return nil
	})
}

type rowFunc func(dest ...interface{}) error

func (f rowFunc) Scan(dest ...interface{}) error { return f(dest...) }
