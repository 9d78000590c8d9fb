package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// BillingMetrics counts allocated document numbers and recorded payments.
// It satisfies numbering.Observer and payments.Observer.
type BillingMetrics struct {
	numbers        *prometheus.CounterVec
	payments       *prometheus.CounterVec
	paymentAmounts *prometheus.HistogramVec
}

// NewBillingMetrics registers the billing collectors on reg.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	numbers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "garage",
		Name:      "document_numbers_allocated_total",
		Help:      "Document numbers handed out by counter.",
	}, []string{"counter"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "garage",
		Name:      "payments_recorded_total",
		Help:      "Payments recorded by method and resulting invoice status.",
	}, []string{"method", "status"})
	amounts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "garage",
		Name:      "payment_amount_euros",
		Help:      "Distribution of recorded payment amounts.",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"method"})
	reg.MustRegister(numbers, payments, amounts)
	return &BillingMetrics{numbers: numbers, payments: payments, paymentAmounts: amounts}
}

// NumberAllocated implements numbering.Observer.
func (b *BillingMetrics) NumberAllocated(counter string) {
	if b == nil {
		return
	}
	b.numbers.WithLabelValues(counter).Inc()
}

// PaymentRecorded implements payments.Observer.
func (b *BillingMetrics) PaymentRecorded(method string, amount decimal.Decimal, status string) {
	if b == nil {
		return
	}
	b.payments.WithLabelValues(method, status).Inc()
	b.paymentAmounts.WithLabelValues(method).Observe(amount.InexactFloat64())
}
