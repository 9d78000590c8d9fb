// Package lines holds the typed line items shared by quotes and invoices and
// the totals algorithm applied to them.
package lines

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Epsilon is the one-cent tolerance used for every paid/remaining comparison.
var Epsilon = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// DiscountType selects how Discount.Value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Discount is an optional per-line reduction.
type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Item is one line of a quote or invoice. Quantity, UnitPriceHT and VATRate are
// pointers so a line missing any of them can be carried but skipped in totals.
type Item struct {
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitPriceHT *decimal.Decimal `json:"unitPriceHT,omitempty"`
	VATRate     *decimal.Decimal `json:"vatRate,omitempty"`
	Discount    *Discount        `json:"discount,omitempty"`
}

// Totals are the monetary aggregates of a document.
type Totals struct {
	TotalHT       decimal.Decimal `json:"totalHT"`
	TotalVAT      decimal.Decimal `json:"totalVAT"`
	TotalTTC      decimal.Decimal `json:"totalTTC"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
}

// Complete reports whether the line carries everything needed to price it.
func (it Item) Complete() bool {
	return it.Quantity != nil && it.UnitPriceHT != nil && it.VATRate != nil
}

// Amounts prices a single complete line: base, discount, net HT and VAT.
func (it Item) Amounts() (base, discount, ht, vat decimal.Decimal) {
	base = it.Quantity.Mul(*it.UnitPriceHT)
	discount = decimal.Zero
	if it.Discount != nil {
		switch it.Discount.Type {
		case DiscountPercentage:
			discount = base.Mul(it.Discount.Value).Div(hundred)
		default:
			discount = it.Discount.Value
		}
	}
	ht = base.Sub(discount)
	vat = ht.Mul(*it.VATRate).Div(hundred)
	return base, discount, ht, vat
}

// ComputeTotals accumulates the totals of items. Incomplete lines are skipped.
// Sums are kept exact and rounded to cents once at the end, and TTC is derived
// from the rounded HT and VAT so TTC == HT + VAT always holds.
func ComputeTotals(items []Item) Totals {
	ht, vat, disc := decimal.Zero, decimal.Zero, decimal.Zero
	for _, it := range items {
		if !it.Complete() {
			continue
		}
		_, d, lineHT, lineVAT := it.Amounts()
		ht = ht.Add(lineHT)
		vat = vat.Add(lineVAT)
		disc = disc.Add(d)
	}
	t := Totals{
		TotalHT:       ht.Round(2),
		TotalVAT:      vat.Round(2),
		TotalDiscount: disc.Round(2),
	}
	t.TotalTTC = t.TotalHT.Add(t.TotalVAT)
	return t
}

// Consistent reports whether TTC equals HT + VAT within Epsilon.
func (t Totals) Consistent() bool {
	return t.TotalTTC.Sub(t.TotalHT.Add(t.TotalVAT)).Abs().LessThanOrEqual(Epsilon)
}

// ValidateItems checks the shape of every line and returns field errors keyed
// by "items[i].field".
func ValidateItems(items []Item) map[string]string {
	fields := map[string]string{}
	if len(items) == 0 {
		fields["items"] = "at least one line item is required"
		return fields
	}
	for i, it := range items {
		key := func(f string) string { return fmt.Sprintf("items[%d].%s", i, f) }
		if strings.TrimSpace(it.Description) == "" {
			fields[key("description")] = "required"
		}
		if it.Quantity != nil && !it.Quantity.IsPositive() {
			fields[key("quantity")] = "must be greater than 0"
		}
		if it.UnitPriceHT != nil && it.UnitPriceHT.IsNegative() {
			fields[key("unitPriceHT")] = "must not be negative"
		}
		if it.VATRate != nil && (it.VATRate.IsNegative() || it.VATRate.GreaterThan(hundred)) {
			fields[key("vatRate")] = "must be between 0 and 100"
		}
		if it.Discount == nil {
			continue
		}
		switch it.Discount.Type {
		case DiscountPercentage:
			if it.Discount.Value.IsNegative() || it.Discount.Value.GreaterThan(hundred) {
				fields[key("discount.value")] = "must be between 0 and 100"
			}
		case DiscountFixed:
			if it.Discount.Value.IsNegative() {
				fields[key("discount.value")] = "must not be negative"
			}
			if it.Complete() && it.Discount.Value.GreaterThan(it.Quantity.Mul(*it.UnitPriceHT)) {
				fields[key("discount.value")] = "must not exceed the line amount"
			}
		default:
			fields[key("discount.type")] = "must be percentage or fixed"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// PaymentDetails is the payment condition descriptor attached to a document.
type PaymentDetails struct {
	Terms       string           `json:"terms,omitempty"`
	Method      string           `json:"method,omitempty"`
	DepositRate *decimal.Decimal `json:"depositRate,omitempty"`
	IBAN        string           `json:"iban,omitempty"`
}

// Remaining returns total minus paid, floored at zero.
func Remaining(total, paid decimal.Decimal) decimal.Decimal {
	r := total.Sub(paid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Covers reports whether paid settles total within Epsilon.
func Covers(paid, total decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(total.Sub(Epsilon))
}

// Exceeds reports whether amount overshoots remaining by more than Epsilon.
func Exceeds(amount, remaining decimal.Decimal) bool {
	return amount.GreaterThan(remaining.Add(Epsilon))
}

// MustDec parses v into an optional decimal field. It panics on malformed
// input and is meant for literals.
func MustDec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}
