// Package numbering allocates gap-free, per-year document numbers.
package numbering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atelier-garage/garage/internal/shared"
)

// Counter names and prefixes of the legal document sequences.
const (
	CounterInvoice = "invoice"
	PrefixInvoice  = "FA"
	CounterQuote   = "quote"
	PrefixQuote    = "DEV"
)

// Store performs the atomic find-or-create-then-increment on a (name, year)
// counter and returns the new sequence value.
type Store interface {
	Increment(ctx context.Context, name string, year int) (int64, error)
}

// Observer is notified of every successful allocation.
type Observer interface {
	NumberAllocated(counter string)
}

// Allocator renders sequence values from a Store into document numbers.
type Allocator struct {
	store    Store
	now      func() time.Time
	observer Observer
}

// Option customises an Allocator.
type Option func(*Allocator)

// WithClock overrides the clock used for the default year.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

// WithObserver attaches an allocation observer.
func WithObserver(o Observer) Option {
	return func(a *Allocator) { a.observer = o }
}

// NewAllocator constructs an Allocator over store.
func NewAllocator(store Store, opts ...Option) *Allocator {
	a := &Allocator{store: store, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns the next number of the (name, year) sequence. A zero year
// means the current calendar year.
func (a *Allocator) Allocate(ctx context.Context, name, prefix string, year int) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", shared.Validation("counter name required", nil)
	}
	if year == 0 {
		year = a.now().Year()
	}
	seq, err := a.store.Increment(ctx, name, year)
	if err != nil {
		return "", shared.StorageError("increment counter "+name, err)
	}
	if a.observer != nil {
		a.observer.NumberAllocated(name)
	}
	return Format(prefix, year, seq), nil
}

// Format renders <prefix><year>-<seq padded to 6 digits>. Sequences beyond
// six digits are not truncated.
func Format(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s%04d-%06d", prefix, year, seq)
}

// Bind returns a copy of the allocator drawing from store, typically the
// counter store of an open transaction.
func (a *Allocator) Bind(store Store) *Allocator {
	cp := *a
	cp.store = store
	return &cp
}
