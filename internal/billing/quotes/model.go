package quotes

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier-garage/garage/internal/billing/lines"
)

// Status is the lifecycle state of a quote.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusViewed    Status = "VIEWED"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusDraft:    {StatusSent, StatusCancelled},
	StatusSent:     {StatusViewed, StatusAccepted, StatusRejected, StatusExpired, StatusCancelled},
	StatusViewed:   {StatusAccepted, StatusRejected, StatusExpired, StatusCancelled},
	StatusAccepted: {StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusViewed, StatusAccepted, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedFrom lists the statuses reachable from s.
func AllowedFrom(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// Quote is a non-binding price proposal.
type Quote struct {
	ID             int64                `json:"id"`
	Number         string               `json:"number"`
	ClientID       int64                `json:"clientId"`
	Date           time.Time            `json:"date"`
	ValidityDate   time.Time            `json:"validityDate"`
	Status         Status               `json:"status"`
	Items          []lines.Item         `json:"items"`
	PaymentDetails lines.PaymentDetails `json:"paymentDetails"`
	Notes          *string              `json:"notes,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
	lines.Totals
}

// MarshalJSON adds totalRemise, the quote's name for the discount total,
// next to the shared totals.
func (q Quote) MarshalJSON() ([]byte, error) {
	type quote Quote
	return json.Marshal(struct {
		quote
		TotalRemise decimal.Decimal `json:"totalRemise"`
	}{quote(q), q.TotalDiscount})
}

// EventType labels an entry of the quote event log.
type EventType string

const (
	EventCreated       EventType = "CREATED"
	EventUpdated       EventType = "UPDATED"
	EventStatusChanged EventType = "STATUS_CHANGED"
	EventConverted     EventType = "CONVERTED"
)

// Event is an append-only log entry keyed to a quote.
type Event struct {
	ID         int64     `json:"id"`
	QuoteID    int64     `json:"quoteId"`
	Type       EventType `json:"type"`
	FromStatus Status    `json:"fromStatus,omitempty"`
	ToStatus   Status    `json:"toStatus,omitempty"`
	ActorID    int64     `json:"actorId"`
	CreatedAt  time.Time `json:"createdAt"`
}
