package invoices

import (
	"time"

	"github.com/atelier-garage/garage/internal/billing/lines"
)

// CreateRequest is the payload for a direct invoice. Totals are always
// recomputed from Items.
type CreateRequest struct {
	ClientID       int64                `json:"clientId" validate:"required,gt=0"`
	Date           *time.Time           `json:"date,omitempty"`
	DueDate        *time.Time           `json:"dueDate,omitempty"`
	Items          []lines.Item         `json:"items"`
	PaymentMethod  *string              `json:"paymentMethod,omitempty" validate:"omitempty,max=50"`
	PaymentDetails lines.PaymentDetails `json:"paymentDetails"`
	Notes          *string              `json:"notes,omitempty" validate:"omitempty,max=2000"`
	LegalNotices   *string              `json:"legalNotices,omitempty" validate:"omitempty,max=4000"`
}

// ConvertRequest turns an accepted quote into an invoice.
type ConvertRequest struct {
	DueDate       time.Time  `json:"dueDate" validate:"required"`
	Date          *time.Time `json:"date,omitempty"`
	PaymentMethod *string    `json:"paymentMethod,omitempty" validate:"omitempty,max=50"`
	Notes         *string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// UpdateRequest replaces the content of a draft invoice.
type UpdateRequest struct {
	ClientID       *int64               `json:"clientId,omitempty" validate:"omitempty,gt=0"`
	Date           *time.Time           `json:"date,omitempty"`
	DueDate        *time.Time           `json:"dueDate,omitempty"`
	Items          []lines.Item         `json:"items"`
	PaymentMethod  *string              `json:"paymentMethod,omitempty" validate:"omitempty,max=50"`
	PaymentDetails lines.PaymentDetails `json:"paymentDetails"`
	Notes          *string              `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// CancelRequest carries the mandatory cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ListFilters narrows an invoice listing.
type ListFilters struct {
	Status   *Status
	ClientID *int64
	Limit    int
	Offset   int
}

// ListResponse is a page of invoices.
type ListResponse struct {
	Items []Invoice `json:"items"`
	Total int       `json:"total"`
}
