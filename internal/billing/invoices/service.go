package invoices

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/lines"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/billing/quotes"
	"github.com/atelier-garage/garage/internal/dispatch"
	"github.com/atelier-garage/garage/internal/shared"
)

// DefaultDueDays applies when a direct invoice omits its due date.
const DefaultDueDays = 30

// Repository provides invoice reads and opens transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	List(ctx context.Context, filters ListFilters) ([]Invoice, int, error)
}

// TxRepository exposes the reads and writes performed inside one transaction.
type TxRepository interface {
	Counters() numbering.Store
	GetClient(ctx context.Context, id int64) (clients.Client, error)
	GetQuoteForUpdate(ctx context.Context, id int64) (quotes.Quote, error)
	InsertQuoteEvent(ctx context.Context, e *quotes.Event) error
	ActiveInvoiceForQuote(ctx context.Context, quoteID int64) (int64, bool, error)
	GetForUpdate(ctx context.Context, id int64) (Invoice, error)
	Insert(ctx context.Context, inv *Invoice) error
	Update(ctx context.Context, inv Invoice) error
	UpdateStatus(ctx context.Context, change StatusChange) error
	Delete(ctx context.Context, id int64) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Service enacts the invoice state machine and quote conversion.
type Service struct {
	repo         Repository
	numbers      *numbering.Allocator
	notifier     dispatch.Notifier
	validate     *validator.Validate
	legalNotices string
	dueDays      int
	now          func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLegalNotices overrides the default legal notice block.
func WithLegalNotices(text string) Option {
	return func(s *Service) {
		if strings.TrimSpace(text) != "" {
			s.legalNotices = text
		}
	}
}

// WithDueDays overrides the default payment term of direct invoices.
func WithDueDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.dueDays = days
		}
	}
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs an invoice service.
func NewService(repo Repository, numbers *numbering.Allocator, notifier dispatch.Notifier, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		numbers:      numbers,
		notifier:     notifier,
		validate:     shared.NewValidator(),
		legalNotices: DefaultLegalNotices,
		dueDays:      DefaultDueDays,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a DRAFT invoice directly for a client.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (Invoice, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Invoice{}, err
	}
	if fields := lines.ValidateItems(req.Items); fields != nil {
		return Invoice{}, shared.Validation("invalid line items", fields)
	}

	now := s.now().UTC()
	date := day(now)
	if req.Date != nil {
		date = day(*req.Date)
	}
	due := date.AddDate(0, 0, s.dueDays)
	if req.DueDate != nil {
		due = day(*req.DueDate)
	}
	if due.Before(date) {
		return Invoice{}, shared.Validation("due date precedes invoice date", map[string]string{"dueDate": "gtefield"})
	}
	notices := s.legalNotices
	if req.LegalNotices != nil && strings.TrimSpace(*req.LegalNotices) != "" {
		notices = *req.LegalNotices
	}

	inv := Invoice{
		ClientID:       req.ClientID,
		Date:           date,
		DueDate:        due,
		Status:         StatusDraft,
		Items:          req.Items,
		PaymentMethod:  req.PaymentMethod,
		PaymentDetails: req.PaymentDetails,
		Notes:          req.Notes,
		LegalNotices:   notices,
		Totals:         lines.ComputeTotals(req.Items),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		client, err := tx.GetClient(ctx, req.ClientID)
		if err != nil {
			return err
		}
		inv.ClientInfo = client.Snapshot()
		return s.insert(ctx, tx, &inv, actorID)
	})
	if err != nil {
		return Invoice{}, shared.StorageError("create invoice", err)
	}
	return inv, nil
}

// ConvertFromQuote creates a DRAFT invoice from an ACCEPTED quote, copying its
// items and totals verbatim. A quote holds at most one active invoice.
func (s *Service) ConvertFromQuote(ctx context.Context, quoteID int64, req ConvertRequest, actorID int64) (Invoice, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Invoice{}, err
	}

	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuoteForUpdate(ctx, quoteID)
		if err != nil {
			return err
		}
		if q.Status != quotes.StatusAccepted {
			return shared.Policy(
				fmt.Sprintf("quote must be %s to be converted (current status %s)", quotes.StatusAccepted, q.Status),
				map[string]any{"required_status": quotes.StatusAccepted, "status": q.Status},
			)
		}
		existing, found, err := tx.ActiveInvoiceForQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if found {
			return shared.Conflict(
				fmt.Sprintf("quote %s already has active invoice %d", q.Number, existing),
				map[string]any{"existing_invoice_id": existing},
			)
		}
		client, err := tx.GetClient(ctx, q.ClientID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		date := day(now)
		if req.Date != nil {
			date = day(*req.Date)
		}
		due := day(req.DueDate)
		if due.Before(date) {
			return shared.Validation("due date precedes invoice date", map[string]string{"dueDate": "gtefield"})
		}
		qid := q.ID
		inv = Invoice{
			ClientID:       q.ClientID,
			ClientInfo:     client.Snapshot(),
			Date:           date,
			DueDate:        due,
			Status:         StatusDraft,
			Items:          q.Items,
			Totals:         q.Totals,
			QuoteID:        &qid,
			PaymentMethod:  paymentMethod(req.PaymentMethod, q.PaymentDetails),
			PaymentDetails: q.PaymentDetails,
			Notes:          req.Notes,
			LegalNotices:   s.legalNotices,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.insert(ctx, tx, &inv, actorID); err != nil {
			return err
		}
		return tx.InsertQuoteEvent(ctx, &quotes.Event{
			QuoteID:    q.ID,
			Type:       quotes.EventConverted,
			FromStatus: q.Status,
			ToStatus:   q.Status,
			ActorID:    actorID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return Invoice{}, shared.StorageError("convert quote", err)
	}
	return inv, nil
}

// insert allocates the invoice number and stores inv with its creation
// audit record.
func (s *Service) insert(ctx context.Context, tx TxRepository, inv *Invoice, actorID int64) error {
	number, err := s.numbers.Bind(tx.Counters()).Allocate(ctx, numbering.CounterInvoice, numbering.PrefixInvoice, inv.Date.Year())
	if err != nil {
		return err
	}
	inv.Number = number
	if err := tx.Insert(ctx, inv); err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	meta := map[string]any{"number": inv.Number, "total_ttc": inv.TotalTTC.StringFixed(2)}
	if inv.QuoteID != nil {
		meta["quote_id"] = *inv.QuoteID
	}
	return tx.RecordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditInvoiceCreated,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(inv.ID, 10),
		Meta:     meta,
		At:       inv.CreatedAt,
	})
}

// paymentMethod prefers the explicit override and falls back to the method
// agreed on the quote.
func paymentMethod(override *string, details lines.PaymentDetails) *string {
	if override != nil && strings.TrimSpace(*override) != "" {
		return override
	}
	if details.Method == "" {
		return nil
	}
	method := details.Method
	return &method
}

// Update replaces the content of a DRAFT invoice.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest, actorID int64) (Invoice, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Invoice{}, err
	}
	if fields := lines.ValidateItems(req.Items); fields != nil {
		return Invoice{}, shared.Validation("invalid line items", fields)
	}

	var out Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return shared.Policy("only draft invoices may be modified", map[string]any{"status": inv.Status})
		}
		if req.ClientID != nil && *req.ClientID != inv.ClientID {
			client, err := tx.GetClient(ctx, *req.ClientID)
			if err != nil {
				return err
			}
			inv.ClientID = client.ID
			inv.ClientInfo = client.Snapshot()
		}
		if req.Date != nil {
			inv.Date = day(*req.Date)
		}
		if req.DueDate != nil {
			inv.DueDate = day(*req.DueDate)
		}
		if inv.DueDate.Before(inv.Date) {
			return shared.Validation("due date precedes invoice date", map[string]string{"dueDate": "gtefield"})
		}
		inv.Items = req.Items
		inv.Totals = lines.ComputeTotals(req.Items)
		inv.PaymentMethod = req.PaymentMethod
		inv.PaymentDetails = req.PaymentDetails
		inv.Notes = req.Notes
		inv.UpdatedAt = s.now().UTC()
		if err := tx.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		out = inv
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   shared.AuditInvoiceUpdated,
			Entity:   "invoice",
			EntityID: strconv.FormatInt(inv.ID, 10),
			Meta:     map[string]any{"number": inv.Number, "total_ttc": inv.TotalTTC.StringFixed(2)},
			At:       inv.UpdatedAt,
		})
	})
	if err != nil {
		return Invoice{}, shared.StorageError("update invoice", err)
	}
	return out, nil
}

// Delete removes a DRAFT invoice. Issued invoices can only be cancelled.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return shared.Policy("only draft invoices may be deleted; cancel the invoice instead",
				map[string]any{"status": inv.Status})
		}
		return tx.Delete(ctx, id)
	})
	return shared.StorageError("delete invoice", err)
}

// Send marks the invoice as sent. DRAFT moves to SENT; later statuses only
// refresh SentAt. Delivery is handed off after commit and its outcome ignored.
func (s *Service) Send(ctx context.Context, id int64, actorID int64) (Invoice, error) {
	var out Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return shared.Policy("cancelled invoices cannot be sent", map[string]any{"status": inv.Status})
		}
		from := inv.Status
		now := s.now().UTC()
		change := inv.Lifecycle()
		if change.Status == StatusDraft {
			change.Status = StatusSent
		}
		change.SentAt = &now
		change.UpdatedAt = now
		if err := tx.UpdateStatus(ctx, change); err != nil {
			return fmt.Errorf("update invoice status: %w", err)
		}
		inv.Apply(change)
		out = inv
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   shared.AuditInvoiceSent,
			Entity:   "invoice",
			EntityID: strconv.FormatInt(inv.ID, 10),
			Meta:     map[string]any{"number": inv.Number, "from": from, "to": inv.Status},
			At:       now,
		})
	})
	if err != nil {
		return Invoice{}, shared.StorageError("send invoice", err)
	}
	due := out.DueDate
	s.notifier.Notify(ctx, dispatch.Event{
		Kind:       dispatch.KindInvoiceSent,
		DocumentID: out.ID,
		Number:     out.Number,
		ClientID:   out.ClientID,
		Recipient:  out.ClientInfo.Email,
		AmountTTC:  out.TotalTTC,
		DueDate:    &due,
		OccurredAt: *out.SentAt,
	})
	return out, nil
}

// Cancel cancels an invoice that is neither CANCELLED nor PAID.
func (s *Service) Cancel(ctx context.Context, id int64, req CancelRequest, actorID int64) (Invoice, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Invoice{}, err
	}

	var out Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case StatusCancelled:
			return shared.Policy("invoice is already cancelled", map[string]any{"status": inv.Status})
		case StatusPaid:
			return shared.Policy("paid invoices cannot be cancelled", map[string]any{"status": inv.Status})
		}
		from := inv.Status
		now := s.now().UTC()
		reason := req.Reason
		change := inv.Lifecycle()
		change.Status = StatusCancelled
		change.CancelledAt = &now
		change.CancellationReason = &reason
		change.UpdatedAt = now
		if err := tx.UpdateStatus(ctx, change); err != nil {
			return fmt.Errorf("update invoice status: %w", err)
		}
		inv.Apply(change)
		out = inv
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   shared.AuditInvoiceCancelled,
			Entity:   "invoice",
			EntityID: strconv.FormatInt(inv.ID, 10),
			Meta:     map[string]any{"number": inv.Number, "from": from, "reason": reason},
			At:       now,
		})
	})
	if err != nil {
		return Invoice{}, shared.StorageError("cancel invoice", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, shared.StorageError("load invoice", err)
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, filters ListFilters) (ListResponse, error) {
	page := shared.NewPage(filters.Limit, filters.Offset)
	filters.Limit, filters.Offset = page.Limit, page.Offset
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResponse{}, shared.StorageError("list invoices", err)
	}
	if items == nil {
		items = []Invoice{}
	}
	return ListResponse{Items: items, Total: total}, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
