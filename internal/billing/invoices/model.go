package invoices

import (
	"time"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/lines"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusPartial   Status = "PARTIAL"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPartial, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// DefaultLegalNotices is the mandatory French late-payment notice.
const DefaultLegalNotices = "En cas de retard de paiement, une pénalité égale à trois fois le taux d'intérêt légal " +
	"sera exigible (article L441-10 du Code de commerce), ainsi qu'une indemnité forfaitaire pour frais de " +
	"recouvrement de 40 euros. Pas d'escompte pour paiement anticipé."

// Invoice is a legally binding billing document. Once it leaves DRAFT only
// Status, the lifecycle timestamps and the cancellation reason change.
type Invoice struct {
	ID                 int64                `json:"id"`
	Number             string               `json:"number"`
	ClientID           int64                `json:"clientId"`
	ClientInfo         clients.Info         `json:"clientInfo"`
	Date               time.Time            `json:"date"`
	DueDate            time.Time            `json:"dueDate"`
	Status             Status               `json:"status"`
	Items              []lines.Item         `json:"items"`
	QuoteID            *int64               `json:"quoteId,omitempty"`
	PaymentMethod      *string              `json:"paymentMethod,omitempty"`
	PaymentDetails     lines.PaymentDetails `json:"paymentDetails"`
	Notes              *string              `json:"notes,omitempty"`
	LegalNotices       string               `json:"legalNotices"`
	SentAt             *time.Time           `json:"sentAt,omitempty"`
	PaidAt             *time.Time           `json:"paidAt,omitempty"`
	CancelledAt        *time.Time           `json:"cancelledAt,omitempty"`
	CancellationReason *string              `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
	lines.Totals
}

// StatusChange carries the only columns that may change after issue.
type StatusChange struct {
	ID                 int64
	Status             Status
	SentAt             *time.Time
	PaidAt             *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
	UpdatedAt          time.Time
}

// Lifecycle extracts the mutable lifecycle fields of inv.
func (inv Invoice) Lifecycle() StatusChange {
	return StatusChange{
		ID:                 inv.ID,
		Status:             inv.Status,
		SentAt:             inv.SentAt,
		PaidAt:             inv.PaidAt,
		CancelledAt:        inv.CancelledAt,
		CancellationReason: inv.CancellationReason,
		UpdatedAt:          inv.UpdatedAt,
	}
}

// Apply copies a StatusChange onto inv.
func (inv *Invoice) Apply(c StatusChange) {
	inv.Status = c.Status
	inv.SentAt = c.SentAt
	inv.PaidAt = c.PaidAt
	inv.CancelledAt = c.CancelledAt
	inv.CancellationReason = c.CancellationReason
	inv.UpdatedAt = c.UpdatedAt
}
