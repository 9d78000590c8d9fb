package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordRequest is the payload for recording a payment.
type RecordRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    Method          `json:"method" validate:"required,oneof=CASH CHECK TRANSFER CARD DIRECT_DEBIT"`
	Date      *time.Time      `json:"date,omitempty"`
	Reference *string         `json:"reference,omitempty" validate:"omitempty,max=100"`
	Notes     *string         `json:"notes,omitempty" validate:"omitempty,max=1000"`
}
