package memstore

import (
	"context"

	"github.com/atelier-garage/garage/internal/billing/invoices"
	"github.com/atelier-garage/garage/internal/billing/payments"
	"github.com/atelier-garage/garage/internal/shared"
)

// PaymentRepo implements payments.Repository.
type PaymentRepo struct{ s *Store }

// Payments returns the payment repository view.
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s} }

type paymentTx struct{ tx *Tx }

func (r *PaymentRepo) WithTx(ctx context.Context, fn func(context.Context, payments.TxRepository) error) error {
	return r.s.Atomically(ctx, func(tx *Tx) error { return fn(ctx, paymentTx{tx}) })
}

func (r *PaymentRepo) GetInvoice(ctx context.Context, id int64) (invoices.Invoice, error) {
	return r.s.Invoices().Get(ctx, id)
}

func (r *PaymentRepo) ListByInvoice(_ context.Context, invoiceID int64) ([]payments.Payment, error) {
	var out []payments.Payment
	r.s.read(func(st *state) { out = paymentsOf(st, invoiceID) })
	return out, nil
}

func paymentsOf(st *state, invoiceID int64) []payments.Payment {
	var out []payments.Payment
	for _, p := range st.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out
}

func (t paymentTx) LockInvoice(_ context.Context, id int64) (invoices.Invoice, error) {
	return t.tx.invoice(id)
}

func (t paymentTx) ListByInvoice(_ context.Context, invoiceID int64) ([]payments.Payment, error) {
	return paymentsOf(t.tx.st, invoiceID), nil
}

func (t paymentTx) Insert(_ context.Context, p *payments.Payment) error {
	if err := t.tx.write(); err != nil {
		return err
	}
	if _, ok := t.tx.st.invoices[p.InvoiceID]; !ok {
		return shared.NotFound("invoice", p.InvoiceID)
	}
	p.ID = t.tx.st.nextID()
	t.tx.st.payments = append(t.tx.st.payments, *p)
	return nil
}

func (t paymentTx) UpdateInvoiceStatus(_ context.Context, c invoices.StatusChange) error {
	return t.tx.setInvoiceStatus(c)
}

func (t paymentTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	return t.tx.audit(log)
}
