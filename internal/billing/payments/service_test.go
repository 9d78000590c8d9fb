package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/invoices"
	"github.com/atelier-garage/garage/internal/billing/lines"
	"github.com/atelier-garage/garage/internal/billing/memstore"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/billing/payments"
	"github.com/atelier-garage/garage/internal/billing/quotes"
	"github.com/atelier-garage/garage/internal/dispatch"
	"github.com/atelier-garage/garage/internal/shared"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) PaymentRecorded(method string, _ decimal.Decimal, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, method+":"+status)
}

type LedgerSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	store    *memstore.Store
	notifier *dispatch.Recorder
	observer *recordingObserver
	guard    *shared.MemoryIdempotency
	invoices *invoices.Service
	ledger   *payments.Service
	client   clients.Client
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.store = memstore.New()
	s.notifier = &dispatch.Recorder{}
	s.observer = &recordingObserver{}
	s.guard = shared.NewMemoryIdempotency()
	alloc := numbering.NewAllocator(s.store.Counters(), numbering.WithClock(clock))
	s.invoices = invoices.NewService(s.store.Invoices(), alloc, s.notifier, invoices.WithClock(clock))
	s.ledger = payments.NewService(s.store.Payments(), s.notifier,
		payments.WithClock(clock),
		payments.WithObserver(s.observer),
		payments.WithIdempotency(s.guard),
	)
	s.client = s.store.SeedClient(clients.Client{Type: clients.TypeIndividual, FirstName: "Luc", LastName: "Besson", Email: "luc@example.test"})
}

// sentInvoice issues an invoice whose TTC equals total (no VAT).
func (s *LedgerSuite) sentInvoice(total string) invoices.Invoice {
	inv, err := s.invoices.Create(s.ctx, invoices.CreateRequest{
		ClientID: s.client.ID,
		Items: []lines.Item{{
			Description: "Carrosserie",
			Quantity:    lines.MustDec("1"),
			UnitPriceHT: lines.MustDec(total),
			VATRate:     lines.MustDec("0"),
		}},
	}, 1)
	s.Require().NoError(err)
	inv, err = s.invoices.Send(s.ctx, inv.ID, 1)
	s.Require().NoError(err)
	return inv
}

func (s *LedgerSuite) record(id int64, amount string) (payments.Ledger, error) {
	return s.ledger.Record(s.ctx, id, payments.RecordRequest{
		Amount: decimal.RequireFromString(amount),
		Method: payments.MethodTransfer,
	}, "", 1)
}

func (s *LedgerSuite) TestFullPayment() {
	inv := s.sentInvoice("100.00")
	res, err := s.record(inv.ID, "100.00")
	s.Require().NoError(err)

	s.Equal(invoices.StatusPaid, res.Invoice.Status)
	s.Require().NotNil(res.Invoice.PaidAt)
	s.Equal(s.now, *res.Invoice.PaidAt)
	s.Len(res.Payments, 1)
	s.Equal("0.00", res.Remaining.StringFixed(2))

	events := s.notifier.Events()
	s.Equal(dispatch.KindInvoicePaid, events[len(events)-1].Kind)
	s.Equal([]string{"TRANSFER:PAID"}, s.observer.calls)
}

func (s *LedgerSuite) TestTwoInstallments() {
	inv := s.sentInvoice("100.00")

	res, err := s.record(inv.ID, "60.00")
	s.Require().NoError(err)
	s.Equal(invoices.StatusPartial, res.Invoice.Status)
	s.Nil(res.Invoice.PaidAt)
	s.Equal("40.00", res.Remaining.StringFixed(2))

	res, err = s.record(inv.ID, "40.00")
	s.Require().NoError(err)
	s.Equal(invoices.StatusPaid, res.Invoice.Status)
	s.NotNil(res.Invoice.PaidAt)
	s.Len(res.Payments, 2)
	s.Equal("100.00", res.TotalPaid.StringFixed(2))
}

func (s *LedgerSuite) TestOverpaymentRejectedWithRemaining() {
	inv := s.sentInvoice("100.00")
	_, err := s.record(inv.ID, "60.00")
	s.Require().NoError(err)

	_, err = s.record(inv.ID, "50.00")
	s.Require().ErrorIs(err, shared.ErrPolicy)
	s.Contains(err.Error(), "amount exceeds remaining due of 40.00")
	se, _ := shared.AsError(err)
	s.Equal("40.00", se.Detail["remaining"])
	s.Equal(1, s.store.PaymentCount(inv.ID))

	got, err := s.invoices.Get(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.Equal(invoices.StatusPartial, got.Status)
}

func (s *LedgerSuite) TestOneCentToleranceSettles() {
	inv := s.sentInvoice("100.00")
	res, err := s.record(inv.ID, "99.99")
	s.Require().NoError(err)
	s.Equal(invoices.StatusPaid, res.Invoice.Status)

	other := s.sentInvoice("50.00")
	res, err = s.record(other.ID, "50.01")
	s.Require().NoError(err)
	s.Equal(invoices.StatusPaid, res.Invoice.Status)
	s.Equal("0.00", res.Remaining.StringFixed(2))
}

func (s *LedgerSuite) TestPreconditionsInOrder() {
	_, err := s.record(999, "10")
	s.ErrorIs(err, shared.ErrNotFound)

	draft, err := s.invoices.Create(s.ctx, invoices.CreateRequest{
		ClientID: s.client.ID,
		Items:    []lines.Item{{Description: "x", Quantity: lines.MustDec("1"), UnitPriceHT: lines.MustDec("10"), VATRate: lines.MustDec("20")}},
	}, 1)
	s.Require().NoError(err)
	_, err = s.record(draft.ID, "10")
	s.Require().ErrorIs(err, shared.ErrPolicy)
	s.Contains(err.Error(), "must be sent")

	cancelled := s.sentInvoice("10")
	_, err = s.invoices.Cancel(s.ctx, cancelled.ID, invoices.CancelRequest{Reason: "erreur"}, 1)
	s.Require().NoError(err)
	_, err = s.record(cancelled.ID, "10")
	s.Require().ErrorIs(err, shared.ErrPolicy)
	s.Contains(err.Error(), "cancelled")

	paid := s.sentInvoice("10")
	_, err = s.record(paid.ID, "10")
	s.Require().NoError(err)
	_, err = s.record(paid.ID, "0.50")
	s.Require().ErrorIs(err, shared.ErrPolicy)
	s.Contains(err.Error(), "already fully paid")
}

func (s *LedgerSuite) TestInvalidAmounts() {
	inv := s.sentInvoice("10")
	for _, amount := range []string{"0", "-5", "1.005"} {
		_, err := s.record(inv.ID, amount)
		s.ErrorIs(err, shared.ErrValidation, amount)
	}
	_, err := s.ledger.Record(s.ctx, inv.ID, payments.RecordRequest{Amount: decimal.NewFromInt(1), Method: "BITCOIN"}, "", 1)
	s.ErrorIs(err, shared.ErrValidation)
}

func (s *LedgerSuite) TestPaymentDateDefaultsToNow() {
	inv := s.sentInvoice("10")
	res, err := s.record(inv.ID, "5")
	s.Require().NoError(err)
	s.Equal(s.now, res.Payments[0].Date)

	when := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	ref := "CHQ-0042"
	res, err = s.ledger.Record(s.ctx, inv.ID, payments.RecordRequest{
		Amount: decimal.NewFromInt(5), Method: payments.MethodCheck, Date: &when, Reference: &ref,
	}, "", 1)
	s.Require().NoError(err)
	s.Equal(when, res.Payments[1].Date)
	s.Equal("CHQ-0042", *res.Payments[1].Reference)
}

func (s *LedgerSuite) TestIdempotencyKey() {
	inv := s.sentInvoice("100")
	req := payments.RecordRequest{Amount: decimal.NewFromInt(10), Method: payments.MethodCash}

	_, err := s.ledger.Record(s.ctx, inv.ID, req, "key-1", 1)
	s.Require().NoError(err)
	_, err = s.ledger.Record(s.ctx, inv.ID, req, "key-1", 1)
	s.ErrorIs(err, shared.ErrConflict)
	s.Equal(1, s.store.PaymentCount(inv.ID))

	// a failed attempt releases its key
	_, err = s.ledger.Record(s.ctx, inv.ID, payments.RecordRequest{Amount: decimal.NewFromInt(500), Method: payments.MethodCash}, "key-2", 1)
	s.ErrorIs(err, shared.ErrPolicy)
	_, err = s.ledger.Record(s.ctx, inv.ID, req, "key-2", 1)
	s.NoError(err)
}

func (s *LedgerSuite) TestStorageFailureRecordsNothing() {
	inv := s.sentInvoice("100")
	s.store.FailNextWrite(errors.New("disk full"))
	_, err := s.record(inv.ID, "10")
	s.ErrorIs(err, shared.ErrTransient)
	s.Zero(s.store.PaymentCount(inv.ID))

	got, err := s.invoices.Get(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.Equal(invoices.StatusSent, got.Status)
}

func (s *LedgerSuite) TestAuditTrail() {
	inv := s.sentInvoice("100")
	_, err := s.ledger.Record(s.ctx, inv.ID, payments.RecordRequest{Amount: decimal.NewFromInt(25), Method: payments.MethodCard}, "", 42)
	s.Require().NoError(err)
	logs := s.store.AuditLogs()
	last := logs[len(logs)-1]
	s.Equal(shared.AuditPaymentRecorded, last.Action)
	s.Equal(int64(42), last.ActorID)
	s.Equal("25.00", last.Meta["amount"])
}

func (s *LedgerSuite) TestSummary() {
	inv := s.sentInvoice("100")
	_, err := s.record(inv.ID, "30")
	s.Require().NoError(err)
	_, err = s.record(inv.ID, "20.50")
	s.Require().NoError(err)

	sum, err := s.ledger.Summary(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.Len(sum.Payments, 2)
	s.Equal("50.50", sum.TotalPaid.StringFixed(2))
	s.Equal("49.50", sum.Remaining.StringFixed(2))
	s.Equal("100.00", sum.InvoiceTotal.StringFixed(2))

	_, err = s.ledger.Summary(s.ctx, 12345)
	s.ErrorIs(err, shared.ErrNotFound)
}

// cancelAwareRepo fails reads whose context is already done, like a pgx pool.
type cancelAwareRepo struct {
	*memstore.PaymentRepo
}

func (r cancelAwareRepo) GetInvoice(ctx context.Context, id int64) (invoices.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return invoices.Invoice{}, err
	}
	return r.PaymentRepo.GetInvoice(ctx, id)
}

func (r cancelAwareRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]payments.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.PaymentRepo.ListByInvoice(ctx, invoiceID)
}

func (s *LedgerSuite) TestSummarySharedReadIgnoresCallerCancellation() {
	inv := s.sentInvoice("100")
	_, err := s.record(inv.ID, "40")
	s.Require().NoError(err)

	ledger := payments.NewService(cancelAwareRepo{s.store.Payments()}, s.notifier)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	sum, err := ledger.Summary(ctx, inv.ID)
	s.Require().NoError(err)
	s.Equal("60.00", sum.Remaining.StringFixed(2))
}

func (s *LedgerSuite) TestSummaryEmpty() {
	inv := s.sentInvoice("80")
	sum, err := s.ledger.Summary(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.NotNil(sum.Payments)
	s.Empty(sum.Payments)
	s.Equal("80.00", sum.Remaining.StringFixed(2))
}

func (s *LedgerSuite) TestConcurrentPaymentsNeverOvershoot() {
	inv := s.sentInvoice("100")
	const workers = 10

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.record(inv.ID, "30")
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			s.ErrorIs(err, shared.ErrPolicy)
		}()
	}
	wg.Wait()

	s.Equal(3, accepted)
	sum, err := s.ledger.Summary(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.Equal("90.00", sum.TotalPaid.StringFixed(2))
	s.True(sum.TotalPaid.LessThanOrEqual(sum.InvoiceTotal.Add(lines.Epsilon)))
}

func TestQuoteToPaidInvoiceScenario(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memstore.New()
	notifier := &dispatch.Recorder{}
	alloc := numbering.NewAllocator(store.Counters(), numbering.WithClock(clock))
	quoteSvc := quotes.NewService(store.Quotes(), alloc, notifier, quotes.WithClock(clock))
	invoiceSvc := invoices.NewService(store.Invoices(), alloc, notifier, invoices.WithClock(clock))
	ledger := payments.NewService(store.Payments(), notifier, payments.WithClock(clock))
	client := store.SeedClient(clients.Client{Type: clients.TypeIndividual, FirstName: "Marie", LastName: "Curie"})

	q, err := quoteSvc.Create(ctx, quotes.CreateRequest{
		ClientID: client.ID,
		Items: []lines.Item{{
			Description: "Embrayage",
			Quantity:    lines.MustDec("1"),
			UnitPriceHT: lines.MustDec("500"),
			VATRate:     lines.MustDec("20"),
		}},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "DEV2026-000001", q.Number)
	assert.Equal(t, "500.00", q.TotalHT.StringFixed(2))
	assert.Equal(t, "100.00", q.TotalVAT.StringFixed(2))
	assert.Equal(t, "600.00", q.TotalTTC.StringFixed(2))
	assert.Equal(t, "0.00", q.TotalDiscount.StringFixed(2))

	_, err = quoteSvc.Send(ctx, q.ID, 1)
	require.NoError(t, err)
	_, err = quoteSvc.Transition(ctx, q.ID, quotes.StatusAccepted, 1)
	require.NoError(t, err)

	inv, err := invoiceSvc.ConvertFromQuote(ctx, q.ID, invoices.ConvertRequest{DueDate: now.AddDate(0, 0, 30)}, 1)
	require.NoError(t, err)
	assert.Equal(t, "FA2026-000001", inv.Number)
	assert.Equal(t, invoices.StatusDraft, inv.Status)
	assert.Equal(t, "500.00", inv.TotalHT.StringFixed(2))
	assert.Equal(t, "100.00", inv.TotalVAT.StringFixed(2))
	assert.Equal(t, "600.00", inv.TotalTTC.StringFixed(2))
	assert.Equal(t, "0.00", inv.TotalDiscount.StringFixed(2))

	inv, err = invoiceSvc.Send(ctx, inv.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusSent, inv.Status)

	res, err := ledger.Record(ctx, inv.ID, payments.RecordRequest{Amount: decimal.RequireFromString("600.00"), Method: payments.MethodCard}, "", 1)
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusPaid, res.Invoice.Status)

	sum, err := ledger.Summary(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", sum.Remaining.StringFixed(2))
}
