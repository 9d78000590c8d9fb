package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/invoices"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/billing/quotes"
	"github.com/atelier-garage/garage/internal/shared"
)

// InvoiceRepo implements invoices.Repository.
type InvoiceRepo struct{ s *Store }

// Invoices returns the invoice repository view.
func (s *Store) Invoices() *InvoiceRepo { return &InvoiceRepo{s} }

type invoiceTx struct{ tx *Tx }

func (r *InvoiceRepo) WithTx(ctx context.Context, fn func(context.Context, invoices.TxRepository) error) error {
	return r.s.Atomically(ctx, func(tx *Tx) error { return fn(ctx, invoiceTx{tx}) })
}

func (r *InvoiceRepo) Get(_ context.Context, id int64) (invoices.Invoice, error) {
	var (
		inv invoices.Invoice
		ok  bool
	)
	r.s.read(func(st *state) { inv, ok = st.invoices[id] })
	if !ok {
		return invoices.Invoice{}, shared.NotFound("invoice", id)
	}
	return inv, nil
}

func (r *InvoiceRepo) List(_ context.Context, f invoices.ListFilters) ([]invoices.Invoice, int, error) {
	var out []invoices.Invoice
	r.s.read(func(st *state) {
		for _, inv := range st.invoices {
			if f.Status != nil && inv.Status != *f.Status {
				continue
			}
			if f.ClientID != nil && inv.ClientID != *f.ClientID {
				continue
			}
			out = append(out, inv)
		}
	})
	slices.SortFunc(out, func(a, b invoices.Invoice) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (t invoiceTx) Counters() numbering.Store { return t.tx.Counters() }

func (t invoiceTx) GetClient(_ context.Context, id int64) (clients.Client, error) {
	c, ok := t.tx.st.clients[id]
	if !ok {
		return clients.Client{}, shared.NotFound("client", id)
	}
	return c, nil
}

func (t invoiceTx) GetQuoteForUpdate(_ context.Context, id int64) (quotes.Quote, error) {
	return t.tx.quote(id)
}

func (t invoiceTx) InsertQuoteEvent(_ context.Context, e *quotes.Event) error {
	return t.tx.insertEvent(e)
}

func (t invoiceTx) ActiveInvoiceForQuote(_ context.Context, quoteID int64) (int64, bool, error) {
	id, ok := t.tx.activeInvoice(quoteID)
	return id, ok, nil
}

func (t invoiceTx) GetForUpdate(_ context.Context, id int64) (invoices.Invoice, error) {
	return t.tx.invoice(id)
}

func (t invoiceTx) Insert(_ context.Context, inv *invoices.Invoice) error {
	if err := t.tx.write(); err != nil {
		return err
	}
	if inv.QuoteID != nil {
		if _, ok := t.tx.activeInvoice(*inv.QuoteID); ok {
			return shared.Conflict("quote already has an active invoice", map[string]any{"quote_id": *inv.QuoteID})
		}
	}
	inv.ID = t.tx.st.nextID()
	stored := *inv
	stored.Items = slices.Clone(inv.Items)
	t.tx.st.invoices[inv.ID] = stored
	return nil
}

func (t invoiceTx) Update(_ context.Context, inv invoices.Invoice) error {
	if err := t.tx.write(); err != nil {
		return err
	}
	cur, err := t.tx.invoice(inv.ID)
	if err != nil {
		return err
	}
	if cur.Status != invoices.StatusDraft {
		return shared.Policy("only draft invoices may be modified", nil)
	}
	inv.Items = slices.Clone(inv.Items)
	t.tx.st.invoices[inv.ID] = inv
	return nil
}

func (t invoiceTx) UpdateStatus(_ context.Context, c invoices.StatusChange) error {
	return t.tx.setInvoiceStatus(c)
}

func (t invoiceTx) Delete(_ context.Context, id int64) error {
	if err := t.tx.write(); err != nil {
		return err
	}
	cur, err := t.tx.invoice(id)
	if err != nil {
		return err
	}
	if cur.Status != invoices.StatusDraft {
		return shared.Policy("only draft invoices may be deleted; cancel the invoice instead", nil)
	}
	delete(t.tx.st.invoices, id)
	return nil
}

func (t invoiceTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	return t.tx.audit(log)
}

func (tx *Tx) invoice(id int64) (invoices.Invoice, error) {
	inv, ok := tx.st.invoices[id]
	if !ok {
		return invoices.Invoice{}, shared.NotFound("invoice", id)
	}
	return inv, nil
}

func (tx *Tx) activeInvoice(quoteID int64) (int64, bool) {
	for _, inv := range tx.st.invoices {
		if inv.QuoteID != nil && *inv.QuoteID == quoteID && inv.Status != invoices.StatusCancelled {
			return inv.ID, true
		}
	}
	return 0, false
}

func (tx *Tx) setInvoiceStatus(c invoices.StatusChange) error {
	if err := tx.write(); err != nil {
		return err
	}
	inv, err := tx.invoice(c.ID)
	if err != nil {
		return err
	}
	inv.Apply(c)
	tx.st.invoices[c.ID] = inv
	return nil
}

func (tx *Tx) audit(log shared.AuditLog) error {
	if err := tx.write(); err != nil {
		return err
	}
	tx.st.audit = append(tx.st.audit, log)
	return nil
}
