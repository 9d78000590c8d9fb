// Package memstore is an in-memory implementation of every billing repository.
// A transaction holds the store mutex for its whole duration and restores a
// snapshot when it fails, which gives the same all-or-nothing and serialised
// behaviour the PostgreSQL repositories get from row locks.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/invoices"
	"github.com/atelier-garage/garage/internal/billing/payments"
	"github.com/atelier-garage/garage/internal/billing/quotes"
	"github.com/atelier-garage/garage/internal/shared"
)

type counterKey struct {
	name string
	year int
}

type state struct {
	seq      int64
	counters map[counterKey]int64
	clients  map[int64]clients.Client
	quotes   map[int64]quotes.Quote
	events   []quotes.Event
	invoices map[int64]invoices.Invoice
	payments []payments.Payment
	audit    []shared.AuditLog
}

func (s *state) clone() *state {
	return &state{
		seq:      s.seq,
		counters: maps.Clone(s.counters),
		clients:  maps.Clone(s.clients),
		quotes:   maps.Clone(s.quotes),
		events:   slices.Clone(s.events),
		invoices: maps.Clone(s.invoices),
		payments: slices.Clone(s.payments),
		audit:    slices.Clone(s.audit),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store holds all billing data in memory.
type Store struct {
	mu    sync.Mutex
	st    *state
	fault error
}

// New returns an empty store.
func New() *Store {
	return &Store{st: &state{
		counters: map[counterKey]int64{},
		clients:  map[int64]clients.Client{},
		quotes:   map[int64]quotes.Quote{},
		invoices: map[int64]invoices.Invoice{},
	}}
}

// Tx is an open in-memory transaction.
type Tx struct {
	store *Store
	st    *state
}

// Atomically runs fn with exclusive access; any error rolls back every change
// fn made.
func (s *Store) Atomically(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.st.clone()
	if err := fn(&Tx{store: s, st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) read(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// FailNextWrite makes the next write inside a transaction return err.
func (s *Store) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

func (tx *Tx) write() error {
	if err := tx.store.fault; err != nil {
		tx.store.fault = nil
		return err
	}
	return nil
}

// SeedCounter sets the last allocated value of a counter.
func (s *Store) SeedCounter(name string, year int, seq int64) {
	s.read(func(st *state) { st.counters[counterKey{name, year}] = seq })
}

// CounterValue returns the last allocated value of a counter.
func (s *Store) CounterValue(name string, year int) int64 {
	var v int64
	s.read(func(st *state) { v = st.counters[counterKey{name, year}] })
	return v
}

// AuditLogs returns a copy of the recorded audit entries.
func (s *Store) AuditLogs() []shared.AuditLog {
	var out []shared.AuditLog
	s.read(func(st *state) { out = slices.Clone(st.audit) })
	return out
}

// PaymentCount returns how many payments are stored for an invoice.
func (s *Store) PaymentCount(invoiceID int64) int {
	n := 0
	s.read(func(st *state) {
		for _, p := range st.payments {
			if p.InvoiceID == invoiceID {
				n++
			}
		}
	})
	return n
}

// EventCount returns how many events are stored for a quote.
func (s *Store) EventCount(quoteID int64) int {
	n := 0
	s.read(func(st *state) {
		for _, e := range st.events {
			if e.QuoteID == quoteID {
				n++
			}
		}
	})
	return n
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
