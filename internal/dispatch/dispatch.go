// Package dispatch hands "document issued" events to the delivery pipeline.
// Delivery outcome never feeds back into document state.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Kind names a delivery event.
type Kind string

const (
	KindQuoteSent   Kind = "quote.sent"
	KindInvoiceSent Kind = "invoice.sent"
	KindInvoicePaid Kind = "invoice.paid"
)

// Event describes a document to deliver.
type Event struct {
	Kind       Kind            `json:"kind"`
	DocumentID int64           `json:"document_id"`
	Number     string          `json:"number"`
	ClientID   int64           `json:"client_id"`
	Recipient  string          `json:"recipient,omitempty"`
	AmountTTC  decimal.Decimal `json:"amount_ttc"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Sink accepts events for asynchronous delivery.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// Notifier is what billing services depend on: it never reports failure.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Dispatcher forwards events to a Sink and logs delivery hand-off failures.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
}

// NewDispatcher constructs a Dispatcher. A nil sink drops events.
func NewDispatcher(sink Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sink: sink, logger: logger, timeout: 3 * time.Second}
}

// Notify hands e to the sink. The caller's cancellation is ignored so a
// request finishing does not abort the hand-off.
func (d *Dispatcher) Notify(ctx context.Context, e Event) {
	if d == nil || d.sink == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.sink.Deliver(ctx, e); err != nil {
		d.logger.Warn("document delivery hand-off failed",
			slog.String("kind", string(e.Kind)),
			slog.Int64("document_id", e.DocumentID),
			slog.String("number", e.Number),
			slog.Any("error", err))
	}
}

// Recorder is an in-memory Notifier for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
