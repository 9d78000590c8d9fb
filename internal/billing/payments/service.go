package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/atelier-garage/garage/internal/billing/invoices"
	"github.com/atelier-garage/garage/internal/billing/lines"
	"github.com/atelier-garage/garage/internal/dispatch"
	"github.com/atelier-garage/garage/internal/shared"
)

// IdempotencyModule scopes payment idempotency keys.
const IdempotencyModule = "payments"

// Repository provides payment reads and opens transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (invoices.Invoice, error)
	ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error)
}

// TxRepository exposes the writes performed while the invoice row is locked.
type TxRepository interface {
	LockInvoice(ctx context.Context, id int64) (invoices.Invoice, error)
	ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error)
	Insert(ctx context.Context, p *Payment) error
	UpdateInvoiceStatus(ctx context.Context, change invoices.StatusChange) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Observer is notified of each recorded payment.
type Observer interface {
	PaymentRecorded(method string, amount decimal.Decimal, status string)
}

// Service is the payment ledger.
type Service struct {
	repo     Repository
	guard    shared.IdempotencyGuard
	notifier dispatch.Notifier
	observer Observer
	validate *validator.Validate
	group    singleflight.Group
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithIdempotency enables Idempotency-Key handling.
func WithIdempotency(guard shared.IdempotencyGuard) Option {
	return func(s *Service) { s.guard = guard }
}

// WithObserver attaches a payment observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs the ledger.
func NewService(repo Repository, notifier dispatch.Notifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: notifier,
		validate: shared.NewValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores a payment and derives the invoice status. Preconditions are
// checked in order: invoice exists, not DRAFT, not CANCELLED, not PAID, and the
// amount stays within the remaining balance plus one cent. The invoice row is
// locked for the whole check-and-insert so concurrent payments cannot both
// consume the same balance.
func (s *Service) Record(ctx context.Context, invoiceID int64, req RecordRequest, idempotencyKey string, actorID int64) (out Ledger, err error) {
	if err := s.check(req); err != nil {
		return Ledger{}, err
	}

	if idempotencyKey != "" && s.guard != nil {
		if err := s.guard.CheckAndInsert(ctx, idempotencyKey, IdempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Ledger{}, shared.Conflict("payment request already processed", map[string]any{"idempotency_key": idempotencyKey})
			}
			return Ledger{}, shared.StorageError("claim idempotency key", err)
		}
		defer func() {
			if err != nil {
				_ = s.guard.Delete(context.WithoutCancel(ctx), idempotencyKey, IdempotencyModule)
			}
		}()
	}

	amount := req.Amount.Round(2)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		switch inv.Status {
		case invoices.StatusDraft:
			return shared.Policy("invoice must be sent before recording a payment", map[string]any{"status": inv.Status})
		case invoices.StatusCancelled:
			return shared.Policy("cannot record a payment on a cancelled invoice", map[string]any{"status": inv.Status})
		case invoices.StatusPaid:
			return shared.Policy("invoice is already fully paid", map[string]any{"status": inv.Status})
		}

		existing, err := tx.ListByInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		paid := Sum(existing)
		remaining := lines.Remaining(inv.TotalTTC, paid)
		if lines.Exceeds(amount, remaining) {
			return shared.Policy(
				fmt.Sprintf("amount exceeds remaining due of %s", remaining.StringFixed(2)),
				map[string]any{"remaining": remaining.StringFixed(2), "amount": amount.StringFixed(2)},
			)
		}

		now := s.now().UTC()
		p := Payment{
			InvoiceID: invoiceID,
			Amount:    amount,
			Method:    req.Method,
			Date:      now,
			Reference: req.Reference,
			Notes:     req.Notes,
			CreatedAt: now,
		}
		if req.Date != nil {
			p.Date = req.Date.UTC()
		}
		if err := tx.Insert(ctx, &p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		newPaid := paid.Add(amount)
		change := inv.Lifecycle()
		change.UpdatedAt = now
		if lines.Covers(newPaid, inv.TotalTTC) {
			change.Status = invoices.StatusPaid
			change.PaidAt = &now
		} else {
			change.Status = invoices.StatusPartial
		}
		if err := tx.UpdateInvoiceStatus(ctx, change); err != nil {
			return fmt.Errorf("update invoice status: %w", err)
		}
		inv.Apply(change)

		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   shared.AuditPaymentRecorded,
			Entity:   "invoice",
			EntityID: strconv.FormatInt(invoiceID, 10),
			Meta: map[string]any{
				"payment_id": p.ID,
				"amount":     amount.StringFixed(2),
				"method":     p.Method,
				"status":     inv.Status,
			},
			At: now,
		}); err != nil {
			return err
		}

		history := append(existing, p)
		out = Ledger{
			Invoice:   inv,
			Payments:  history,
			TotalPaid: newPaid,
			Remaining: lines.Remaining(inv.TotalTTC, newPaid),
		}
		return nil
	})
	if err != nil {
		return Ledger{}, shared.StorageError("record payment", err)
	}

	s.group.Forget(summaryKey(invoiceID))
	if s.observer != nil {
		s.observer.PaymentRecorded(string(req.Method), amount, string(out.Invoice.Status))
	}
	if out.Invoice.Status == invoices.StatusPaid {
		s.notifier.Notify(ctx, dispatch.Event{
			Kind:       dispatch.KindInvoicePaid,
			DocumentID: out.Invoice.ID,
			Number:     out.Invoice.Number,
			ClientID:   out.Invoice.ClientID,
			Recipient:  out.Invoice.ClientInfo.Email,
			AmountTTC:  out.Invoice.TotalTTC,
			OccurredAt: *out.Invoice.PaidAt,
		})
	}
	return out, nil
}

func (s *Service) check(req RecordRequest) error {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return err
	}
	if !req.Amount.IsPositive() {
		return shared.Validation("amount must be greater than 0", map[string]string{"amount": "gt"})
	}
	if req.Amount.Exponent() < -2 && !req.Amount.Equal(req.Amount.Round(2)) {
		return shared.Validation("amount has more than two decimals", map[string]string{"amount": "decimals"})
	}
	return nil
}

// Summary returns the payments of an invoice with paid and remaining totals.
// Concurrent reads of the same invoice share one storage round-trip, which
// runs detached from the cancellation of whichever caller started it.
func (s *Service) Summary(ctx context.Context, invoiceID int64) (Summary, error) {
	detached := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(summaryKey(invoiceID), func() (any, error) {
		inv, err := s.repo.GetInvoice(detached, invoiceID)
		if err != nil {
			return nil, err
		}
		ps, err := s.repo.ListByInvoice(detached, invoiceID)
		if err != nil {
			return nil, err
		}
		if ps == nil {
			ps = []Payment{}
		}
		paid := Sum(ps)
		return Summary{
			Payments:     ps,
			TotalPaid:    paid,
			Remaining:    lines.Remaining(inv.TotalTTC, paid),
			InvoiceTotal: inv.TotalTTC,
		}, nil
	})
	if err != nil {
		return Summary{}, shared.StorageError("load payments", err)
	}
	return v.(Summary), nil
}

func summaryKey(invoiceID int64) string {
	return strconv.FormatInt(invoiceID, 10)
}
