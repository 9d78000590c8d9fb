package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotency(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryIdempotency()

	require.NoError(t, guard.CheckAndInsert(ctx, "k1", "payments"))
	assert.ErrorIs(t, guard.CheckAndInsert(ctx, "k1", "payments"), ErrIdempotencyConflict)
	assert.NoError(t, guard.CheckAndInsert(ctx, "k1", "other"))

	require.NoError(t, guard.Delete(ctx, "k1", "payments"))
	assert.NoError(t, guard.CheckAndInsert(ctx, "k1", "payments"))

	assert.Error(t, guard.CheckAndInsert(ctx, "", "payments"))
}

func TestNewPageClamps(t *testing.T) {
	assert.Equal(t, Page{Limit: 20}, NewPage(0, -5))
	assert.Equal(t, Page{Limit: 200, Offset: 10}, NewPage(1000, 10))
	p := NewPagination(NewPage(20, 0), 41)
	assert.Equal(t, 3, p.TotalPages)
}
