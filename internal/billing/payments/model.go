package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier-garage/garage/internal/billing/invoices"
)

// Method is how a payment was settled.
type Method string

const (
	MethodCash        Method = "CASH"
	MethodCheck       Method = "CHECK"
	MethodTransfer    Method = "TRANSFER"
	MethodCard        Method = "CARD"
	MethodDirectDebit Method = "DIRECT_DEBIT"
)

// Payment is a single settlement against one invoice. Payments are never
// modified or deleted.
type Payment struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoiceId"`
	Amount    decimal.Decimal `json:"amount"`
	Method    Method          `json:"method"`
	Date      time.Time       `json:"date"`
	Reference *string         `json:"reference,omitempty"`
	Notes     *string         `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Ledger is an invoice with its full payment history.
type Ledger struct {
	Invoice   invoices.Invoice `json:"invoice"`
	Payments  []Payment        `json:"payments"`
	TotalPaid decimal.Decimal  `json:"totalPaid"`
	Remaining decimal.Decimal  `json:"remaining"`
}

// Summary is the read-only payment aggregate of an invoice.
type Summary struct {
	Payments     []Payment       `json:"payments"`
	TotalPaid    decimal.Decimal `json:"totalPaid"`
	Remaining    decimal.Decimal `json:"remaining"`
	InvoiceTotal decimal.Decimal `json:"invoiceTotal"`
}

// Sum adds the amounts of ps.
func Sum(ps []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range ps {
		total = total.Add(p.Amount)
	}
	return total
}
