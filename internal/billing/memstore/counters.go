package memstore

import (
	"context"

	"github.com/atelier-garage/garage/internal/billing/numbering"
)

type counterView struct{ s *Store }

type txCounters struct{ tx *Tx }

// Counters returns a numbering.Store whose increments each run in their own
// transaction.
func (s *Store) Counters() numbering.Store { return counterView{s} }

// Counters returns a numbering.Store bound to tx.
func (tx *Tx) Counters() numbering.Store { return txCounters{tx} }

func (v counterView) Increment(ctx context.Context, name string, year int) (int64, error) {
	var seq int64
	err := v.s.Atomically(ctx, func(tx *Tx) error {
		var err error
		seq, err = tx.Counters().Increment(ctx, name, year)
		return err
	})
	return seq, err
}

func (c txCounters) Increment(_ context.Context, name string, year int) (int64, error) {
	if err := c.tx.write(); err != nil {
		return 0, err
	}
	k := counterKey{name, year}
	c.tx.st.counters[k]++
	return c.tx.st.counters[k], nil
}
