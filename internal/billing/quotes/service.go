package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/lines"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/dispatch"
	"github.com/atelier-garage/garage/internal/shared"
)

// DefaultValidityDays applies when neither the request nor the configuration
// sets a validity period.
const DefaultValidityDays = 30

// Repository provides quote reads and opens transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Quote, error)
	List(ctx context.Context, filters ListFilters) ([]Quote, int, error)
	ListEvents(ctx context.Context, quoteID int64) ([]Event, error)
	ListExpirable(ctx context.Context, asOf time.Time) ([]int64, error)
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	Counters() numbering.Store
	GetClient(ctx context.Context, id int64) (clients.Client, error)
	GetForUpdate(ctx context.Context, id int64) (Quote, error)
	Insert(ctx context.Context, q *Quote) error
	Update(ctx context.Context, q Quote) error
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error
	Delete(ctx context.Context, id int64) error
	InsertEvent(ctx context.Context, e *Event) error
	ActiveInvoiceID(ctx context.Context, quoteID int64) (int64, bool, error)
}

// Service enacts the quote state machine.
type Service struct {
	repo         Repository
	numbers      *numbering.Allocator
	notifier     dispatch.Notifier
	validate     *validator.Validate
	validityDays int
	now          func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithValidityDays overrides the default validity period.
func WithValidityDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.validityDays = days
		}
	}
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a quote service.
func NewService(repo Repository, numbers *numbering.Allocator, notifier dispatch.Notifier, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		numbers:      numbers,
		notifier:     notifier,
		validate:     shared.NewValidator(),
		validityDays: DefaultValidityDays,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create numbers and stores a new DRAFT quote.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (Quote, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Quote{}, err
	}
	if fields := lines.ValidateItems(req.Items); fields != nil {
		return Quote{}, shared.Validation("invalid line items", fields)
	}

	now := s.now().UTC()
	date := day(now)
	if req.Date != nil {
		date = day(*req.Date)
	}
	validity := s.validityDays
	if req.ValidityDays != nil {
		validity = *req.ValidityDays
	}

	q := Quote{
		ClientID:       req.ClientID,
		Date:           date,
		ValidityDate:   date.AddDate(0, 0, validity),
		Status:         StatusDraft,
		Items:          req.Items,
		PaymentDetails: req.PaymentDetails,
		Notes:          req.Notes,
		Totals:         lines.ComputeTotals(req.Items),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetClient(ctx, q.ClientID); err != nil {
			return err
		}
		number, err := s.numbers.Bind(tx.Counters()).Allocate(ctx, numbering.CounterQuote, numbering.PrefixQuote, date.Year())
		if err != nil {
			return err
		}
		q.Number = number
		if err := tx.Insert(ctx, &q); err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
		return tx.InsertEvent(ctx, &Event{QuoteID: q.ID, Type: EventCreated, ToStatus: StatusDraft, ActorID: actorID, CreatedAt: now})
	})
	if err != nil {
		return Quote{}, shared.StorageError("create quote", err)
	}
	return q, nil
}

// Update replaces the content of a DRAFT quote and recomputes its totals.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest, actorID int64) (Quote, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Quote{}, err
	}
	if fields := lines.ValidateItems(req.Items); fields != nil {
		return Quote{}, shared.Validation("invalid line items", fields)
	}

	var out Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Status != StatusDraft {
			return shared.Policy("only draft quotes may be modified", map[string]any{"status": q.Status})
		}
		if req.Date != nil {
			q.Date = day(*req.Date)
		}
		if req.ValidityDate != nil {
			q.ValidityDate = day(*req.ValidityDate)
		}
		if q.ValidityDate.Before(q.Date) {
			return shared.Validation("validity date precedes quote date", map[string]string{"validityDate": "gtefield"})
		}
		now := s.now().UTC()
		q.Items = req.Items
		q.PaymentDetails = req.PaymentDetails
		q.Notes = req.Notes
		q.Totals = lines.ComputeTotals(req.Items)
		q.UpdatedAt = now
		if err := tx.Update(ctx, q); err != nil {
			return fmt.Errorf("update quote: %w", err)
		}
		out = q
		return tx.InsertEvent(ctx, &Event{QuoteID: q.ID, Type: EventUpdated, ActorID: actorID, CreatedAt: now})
	})
	if err != nil {
		return Quote{}, shared.StorageError("update quote", err)
	}
	return out, nil
}

// Transition moves a quote to status along the transition table. Cancelling an
// accepted quote is refused while an active invoice references it.
func (s *Service) Transition(ctx context.Context, id int64, to Status, actorID int64) (Quote, error) {
	if !to.Valid() {
		return Quote{}, shared.Validation("unknown quote status", map[string]string{"status": string(to)})
	}
	var out Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := s.transition(ctx, tx, id, to, actorID)
		out = q
		return err
	})
	if err != nil {
		return Quote{}, shared.StorageError("change quote status", err)
	}
	return out, nil
}

func (s *Service) transition(ctx context.Context, tx TxRepository, id int64, to Status, actorID int64) (Quote, error) {
	q, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	from := q.Status
	if !CanTransition(from, to) {
		return Quote{}, shared.Policy(
			fmt.Sprintf("quote cannot move from %s to %s", from, to),
			map[string]any{"from": from, "to": to, "allowed": AllowedFrom(from)},
		)
	}
	if from == StatusAccepted && to == StatusCancelled {
		invoiceID, active, err := tx.ActiveInvoiceID(ctx, id)
		if err != nil {
			return Quote{}, err
		}
		if active {
			return Quote{}, shared.Policy("quote has an active invoice; cancel the invoice first",
				map[string]any{"invoice_id": invoiceID})
		}
	}
	now := s.now().UTC()
	if err := tx.UpdateStatus(ctx, id, to, now); err != nil {
		return Quote{}, fmt.Errorf("update quote status: %w", err)
	}
	if err := tx.InsertEvent(ctx, &Event{QuoteID: id, Type: EventStatusChanged, FromStatus: from, ToStatus: to, ActorID: actorID, CreatedAt: now}); err != nil {
		return Quote{}, err
	}
	q.Status = to
	q.UpdatedAt = now
	return q, nil
}

// Send marks a DRAFT quote as SENT and hands it to the delivery pipeline.
func (s *Service) Send(ctx context.Context, id int64, actorID int64) (Quote, error) {
	var (
		q         Quote
		recipient string
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sent, err := s.transition(ctx, tx, id, StatusSent, actorID)
		if err != nil {
			return err
		}
		client, err := tx.GetClient(ctx, sent.ClientID)
		if err != nil {
			return err
		}
		q, recipient = sent, client.Email
		return nil
	})
	if err != nil {
		return Quote{}, shared.StorageError("send quote", err)
	}
	s.notifier.Notify(ctx, dispatch.Event{
		Kind:       dispatch.KindQuoteSent,
		DocumentID: q.ID,
		Number:     q.Number,
		ClientID:   q.ClientID,
		Recipient:  recipient,
		AmountTTC:  q.TotalTTC,
		DueDate:    &q.ValidityDate,
		OccurredAt: q.UpdatedAt,
	})
	return q, nil
}

// Delete removes a DRAFT quote together with its events.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Status != StatusDraft {
			return shared.Policy("only draft quotes may be deleted", map[string]any{"status": q.Status})
		}
		return tx.Delete(ctx, id)
	})
	return shared.StorageError("delete quote", err)
}

// ExpireOverdue moves SENT and VIEWED quotes past their validity date to
// EXPIRED and returns how many changed. Quotes whose status moved concurrently
// are skipped.
func (s *Service) ExpireOverdue(ctx context.Context, asOf time.Time) (int, error) {
	ids, err := s.repo.ListExpirable(ctx, day(asOf))
	if err != nil {
		return 0, shared.StorageError("list expirable quotes", err)
	}
	expired := 0
	for _, id := range ids {
		_, err := s.Transition(ctx, id, StatusExpired, 0)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, shared.ErrPolicy), errors.Is(err, shared.ErrNotFound):
			continue
		default:
			return expired, err
		}
	}
	return expired, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Quote, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quote{}, shared.StorageError("load quote", err)
	}
	return q, nil
}

func (s *Service) List(ctx context.Context, filters ListFilters) (ListResponse, error) {
	page := shared.NewPage(filters.Limit, filters.Offset)
	filters.Limit, filters.Offset = page.Limit, page.Offset
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResponse{}, shared.StorageError("list quotes", err)
	}
	if items == nil {
		items = []Quote{}
	}
	return ListResponse{Items: items, Total: total}, nil
}

// Events returns the event log of a quote, oldest first.
func (s *Service) Events(ctx context.Context, id int64) ([]Event, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, shared.StorageError("load quote", err)
	}
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, shared.StorageError("list quote events", err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
