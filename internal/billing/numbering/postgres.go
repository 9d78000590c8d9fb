package numbering

import (
	"context"
	"fmt"

	"github.com/atelier-garage/garage/internal/platform/db"
)

// PostgresStore increments counters with a single upsert so concurrent callers
// are serialised on the (name, year) row lock.
type PostgresStore struct {
	db db.DBTX
}

// NewPostgresStore binds the store to a pool or an open transaction. Bound to a
// transaction, the increment commits or rolls back together with the document
// that consumes the number.
func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{db: conn}
}

// Increment implements Store.
func (s *PostgresStore) Increment(ctx context.Context, name string, year int) (int64, error) {
	var seq int64
	err := s.db.QueryRow(ctx, `INSERT INTO counters (name, year, sequence, updated_at)
VALUES ($1, $2, 1, NOW())
ON CONFLICT (name, year) DO UPDATE SET sequence = counters.sequence + 1, updated_at = NOW()
RETURNING sequence`, name, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s/%d: %w", name, year, err)
	}
	return seq, nil
}

// Current returns the last allocated value, or 0 if the counter does not exist yet.
func (s *PostgresStore) Current(ctx context.Context, name string, year int) (int64, error) {
	var seq int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM counters WHERE name = $1 AND year = $2`, name, year).Scan(&seq)
	return seq, err
}
