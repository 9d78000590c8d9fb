package quotes

import (
	"time"

	"github.com/atelier-garage/garage/internal/billing/lines"
)

// CreateRequest is the payload for a new quote.
type CreateRequest struct {
	ClientID       int64                `json:"clientId" validate:"required,gt=0"`
	Date           *time.Time           `json:"date,omitempty"`
	ValidityDays   *int                 `json:"validityDays,omitempty" validate:"omitempty,gt=0,lte=365"`
	Items          []lines.Item         `json:"items"`
	PaymentDetails lines.PaymentDetails `json:"paymentDetails"`
	Notes          *string              `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// UpdateRequest replaces the editable content of a draft quote.
type UpdateRequest struct {
	Date           *time.Time           `json:"date,omitempty"`
	ValidityDate   *time.Time           `json:"validityDate,omitempty"`
	Items          []lines.Item         `json:"items"`
	PaymentDetails lines.PaymentDetails `json:"paymentDetails"`
	Notes          *string              `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// StatusRequest moves a quote along its state machine.
type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=DRAFT SENT VIEWED ACCEPTED REJECTED EXPIRED CANCELLED"`
}

// ListFilters narrows a quote listing.
type ListFilters struct {
	Status   *Status
	ClientID *int64
	Limit    int
	Offset   int
}

// ListResponse is a page of quotes.
type ListResponse struct {
	Items []Quote `json:"items"`
	Total int     `json:"total"`
}
