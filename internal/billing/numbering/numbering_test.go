package numbering_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-garage/garage/internal/billing/memstore"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/shared"
)

type failingStore struct{}

func (failingStore) Increment(context.Context, string, int) (int64, error) {
	return 0, errors.New("connection refused")
}

type countingObserver struct {
	mu    sync.Mutex
	count map[string]int
}

func (o *countingObserver) NumberAllocated(counter string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.count[counter]++
}

func TestFormatPadding(t *testing.T) {
	assert.Equal(t, "FA2026-000001", numbering.Format("FA", 2026, 1))
	assert.Equal(t, "FA2026-123456", numbering.Format("FA", 2026, 123456))
	assert.Equal(t, "FA2026-1000000", numbering.Format("FA", 2026, 1000000))
	assert.Equal(t, "DEV2026-000042", numbering.Format("DEV", 2026, 42))
}

func TestAllocateSequential(t *testing.T) {
	store := memstore.New()
	alloc := numbering.NewAllocator(store.Counters())
	ctx := context.Background()

	for i, want := range []string{"FA2026-000001", "FA2026-000002", "FA2026-000003"} {
		got, err := alloc.Allocate(ctx, numbering.CounterInvoice, numbering.PrefixInvoice, 2026)
		require.NoError(t, err, "allocation %d", i)
		assert.Equal(t, want, got)
	}
}

func TestAllocateGrowsPastSixDigits(t *testing.T) {
	store := memstore.New()
	store.SeedCounter(numbering.CounterInvoice, 2026, 999999)
	alloc := numbering.NewAllocator(store.Counters())

	got, err := alloc.Allocate(context.Background(), numbering.CounterInvoice, numbering.PrefixInvoice, 2026)
	require.NoError(t, err)
	assert.Equal(t, "FA2026-1000000", got)
}

func TestAllocateYearIsolation(t *testing.T) {
	store := memstore.New()
	alloc := numbering.NewAllocator(store.Counters())
	ctx := context.Background()

	a, err := alloc.Allocate(ctx, numbering.CounterInvoice, numbering.PrefixInvoice, 2026)
	require.NoError(t, err)
	b, err := alloc.Allocate(ctx, numbering.CounterInvoice, numbering.PrefixInvoice, 2027)
	require.NoError(t, err)
	c, err := alloc.Allocate(ctx, numbering.CounterQuote, numbering.PrefixQuote, 2026)
	require.NoError(t, err)

	assert.Equal(t, "FA2026-000001", a)
	assert.Equal(t, "FA2027-000001", b)
	assert.Equal(t, "DEV2026-000001", c)
}

func TestAllocateDefaultsToCurrentYear(t *testing.T) {
	store := memstore.New()
	clock := func() time.Time { return time.Date(2031, 3, 1, 0, 0, 0, 0, time.UTC) }
	alloc := numbering.NewAllocator(store.Counters(), numbering.WithClock(clock))

	got, err := alloc.Allocate(context.Background(), numbering.CounterQuote, numbering.PrefixQuote, 0)
	require.NoError(t, err)
	assert.Equal(t, "DEV2031-000001", got)
}

func TestAllocateConcurrentNoDuplicatesNoGaps(t *testing.T) {
	const n = 200
	store := memstore.New()
	obs := &countingObserver{count: map[string]int{}}
	alloc := numbering.NewAllocator(store.Counters(), numbering.WithObserver(obs))

	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			num, err := alloc.Allocate(context.Background(), numbering.CounterInvoice, numbering.PrefixInvoice, 2026)
			assert.NoError(t, err)
			results[i] = num
		}(i)
	}
	wg.Wait()

	sort.Strings(results)
	for i, got := range results {
		assert.Equal(t, numbering.Format("FA", 2026, int64(i+1)), got)
	}
	assert.Equal(t, n, obs.count[numbering.CounterInvoice])
}

func TestAllocateStorageFailureIsTransient(t *testing.T) {
	alloc := numbering.NewAllocator(failingStore{})
	_, err := alloc.Allocate(context.Background(), numbering.CounterInvoice, numbering.PrefixInvoice, 2026)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTransient)
}

func TestAllocateFailedTransactionLeavesCounterUnchanged(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	alloc := numbering.NewAllocator(store.Counters())
	_, err := alloc.Allocate(ctx, numbering.CounterInvoice, numbering.PrefixInvoice, 2026)
	require.NoError(t, err)

	boom := errors.New("insert failed")
	err = store.Atomically(ctx, func(tx *memstore.Tx) error {
		_, err := numbering.NewAllocator(tx.Counters()).Allocate(ctx, numbering.CounterInvoice, numbering.PrefixInvoice, 2026)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	next, err := alloc.Allocate(ctx, numbering.CounterInvoice, numbering.PrefixInvoice, 2026)
	require.NoError(t, err)
	assert.Equal(t, "FA2026-000002", next)
}

func TestAllocateRequiresName(t *testing.T) {
	alloc := numbering.NewAllocator(memstore.New().Counters())
	_, err := alloc.Allocate(context.Background(), " ", "FA", 2026)
	assert.ErrorIs(t, err, shared.ErrValidation)
}
