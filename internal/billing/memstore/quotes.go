package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/billing/quotes"
	"github.com/atelier-garage/garage/internal/shared"
)

// QuoteRepo implements quotes.Repository.
type QuoteRepo struct{ s *Store }

// Quotes returns the quote repository view.
func (s *Store) Quotes() *QuoteRepo { return &QuoteRepo{s} }

type quoteTx struct{ tx *Tx }

func (r *QuoteRepo) WithTx(ctx context.Context, fn func(context.Context, quotes.TxRepository) error) error {
	return r.s.Atomically(ctx, func(tx *Tx) error { return fn(ctx, quoteTx{tx}) })
}

func (r *QuoteRepo) Get(_ context.Context, id int64) (quotes.Quote, error) {
	var (
		q  quotes.Quote
		ok bool
	)
	r.s.read(func(st *state) { q, ok = st.quotes[id] })
	if !ok {
		return quotes.Quote{}, shared.NotFound("quote", id)
	}
	return q, nil
}

func (r *QuoteRepo) List(_ context.Context, f quotes.ListFilters) ([]quotes.Quote, int, error) {
	var out []quotes.Quote
	r.s.read(func(st *state) {
		for _, q := range st.quotes {
			if f.Status != nil && q.Status != *f.Status {
				continue
			}
			if f.ClientID != nil && q.ClientID != *f.ClientID {
				continue
			}
			out = append(out, q)
		}
	})
	slices.SortFunc(out, func(a, b quotes.Quote) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r *QuoteRepo) ListEvents(_ context.Context, quoteID int64) ([]quotes.Event, error) {
	var out []quotes.Event
	r.s.read(func(st *state) {
		for _, e := range st.events {
			if e.QuoteID == quoteID {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

func (r *QuoteRepo) ListExpirable(_ context.Context, asOf time.Time) ([]int64, error) {
	var ids []int64
	r.s.read(func(st *state) {
		for _, q := range st.quotes {
			if (q.Status == quotes.StatusSent || q.Status == quotes.StatusViewed) && q.ValidityDate.Before(asOf) {
				ids = append(ids, q.ID)
			}
		}
	})
	slices.Sort(ids)
	return ids, nil
}

func (t quoteTx) Counters() numbering.Store { return t.tx.Counters() }

func (t quoteTx) GetClient(_ context.Context, id int64) (clients.Client, error) {
	c, ok := t.tx.st.clients[id]
	if !ok {
		return clients.Client{}, shared.NotFound("client", id)
	}
	return c, nil
}

func (t quoteTx) GetForUpdate(_ context.Context, id int64) (quotes.Quote, error) {
	return t.tx.quote(id)
}

func (t quoteTx) Insert(_ context.Context, q *quotes.Quote) error {
	if err := t.tx.write(); err != nil {
		return err
	}
	q.ID = t.tx.st.nextID()
	stored := *q
	stored.Items = slices.Clone(q.Items)
	t.tx.st.quotes[q.ID] = stored
	return nil
}

func (t quoteTx) Update(_ context.Context, q quotes.Quote) error {
	if err := t.tx.write(); err != nil {
		return err
	}
	if _, ok := t.tx.st.quotes[q.ID]; !ok {
		return shared.NotFound("quote", q.ID)
	}
	q.Items = slices.Clone(q.Items)
	t.tx.st.quotes[q.ID] = q
	return nil
}

func (t quoteTx) UpdateStatus(_ context.Context, id int64, status quotes.Status, at time.Time) error {
	if err := t.tx.write(); err != nil {
		return err
	}
	q, err := t.tx.quote(id)
	if err != nil {
		return err
	}
	q.Status = status
	q.UpdatedAt = at
	t.tx.st.quotes[id] = q
	return nil
}

func (t quoteTx) Delete(_ context.Context, id int64) error {
	if err := t.tx.write(); err != nil {
		return err
	}
	delete(t.tx.st.quotes, id)
	t.tx.st.events = slices.DeleteFunc(t.tx.st.events, func(e quotes.Event) bool { return e.QuoteID == id })
	return nil
}

func (t quoteTx) InsertEvent(_ context.Context, e *quotes.Event) error {
	return t.tx.insertEvent(e)
}

func (t quoteTx) ActiveInvoiceID(_ context.Context, quoteID int64) (int64, bool, error) {
	id, ok := t.tx.activeInvoice(quoteID)
	return id, ok, nil
}

func (tx *Tx) quote(id int64) (quotes.Quote, error) {
	q, ok := tx.st.quotes[id]
	if !ok {
		return quotes.Quote{}, shared.NotFound("quote", id)
	}
	return q, nil
}

func (tx *Tx) insertEvent(e *quotes.Event) error {
	if err := tx.write(); err != nil {
		return err
	}
	e.ID = tx.st.nextID()
	tx.st.events = append(tx.st.events, *e)
	return nil
}
