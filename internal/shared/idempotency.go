package shared

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/atelier-garage/garage/internal/platform/db"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyGuard claims request keys per module and releases them when
// processing fails.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	db db.DBTX
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(conn db.DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: conn}
}

// CheckAndInsert ensures key uniqueness per module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if err := checkKey(key, module); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if err := checkKey(key, module); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module)
	return err
}

func checkKey(key, module string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	return nil
}

// MemoryIdempotency is an in-process IdempotencyGuard for tests and single-node runs.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryIdempotency returns an empty guard.
func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]struct{})}
}

// CheckAndInsert implements IdempotencyGuard.
func (m *MemoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if err := checkKey(key, module); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := module + "\x00" + key
	if _, ok := m.keys[k]; ok {
		return ErrIdempotencyConflict
	}
	m.keys[k] = struct{}{}
	return nil
}

// Delete implements IdempotencyGuard.
func (m *MemoryIdempotency) Delete(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"\x00"+key)
	return nil
}
