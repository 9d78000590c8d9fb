package quotes_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/lines"
	"github.com/atelier-garage/garage/internal/billing/memstore"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/billing/quotes"
	"github.com/atelier-garage/garage/internal/dispatch"
	"github.com/atelier-garage/garage/internal/shared"
)

var fixedNow = time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC)

type QuoteServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memstore.Store
	notifier *dispatch.Recorder
	service  *quotes.Service
	client   clients.Client
}

func TestQuoteServiceSuite(t *testing.T) {
	suite.Run(t, new(QuoteServiceSuite))
}

func (s *QuoteServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memstore.New()
	s.notifier = &dispatch.Recorder{}
	clock := func() time.Time { return fixedNow }
	alloc := numbering.NewAllocator(s.store.Counters(), numbering.WithClock(clock))
	s.service = quotes.NewService(s.store.Quotes(), alloc, s.notifier, quotes.WithClock(clock))
	s.client = s.store.SeedClient(clients.Client{Type: clients.TypeIndividual, FirstName: "Jeanne", LastName: "Dupont", Email: "jeanne.dupont@example.test"})
}

func (s *QuoteServiceSuite) createQuote() quotes.Quote {
	q, err := s.service.Create(s.ctx, quotes.CreateRequest{
		ClientID: s.client.ID,
		Items: []lines.Item{{
			Description: "Révision complète",
			Quantity:    lines.MustDec("1"),
			UnitPriceHT: lines.MustDec("500"),
			VATRate:     lines.MustDec("20"),
		}},
	}, 1)
	s.Require().NoError(err)
	return q
}

func (s *QuoteServiceSuite) TestCreateNumbersAndTotals() {
	q := s.createQuote()

	s.Equal("DEV2026-000001", q.Number)
	s.Equal(quotes.StatusDraft, q.Status)
	s.Equal("500.00", q.TotalHT.StringFixed(2))
	s.Equal("100.00", q.TotalVAT.StringFixed(2))
	s.Equal("600.00", q.TotalTTC.StringFixed(2))
	s.Equal("0.00", q.TotalDiscount.StringFixed(2))
	s.Equal(time.Date(2026, 6, 11, 0, 0, 0, 0, time.UTC), q.ValidityDate)

	events, err := s.service.Events(s.ctx, q.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(quotes.EventCreated, events[0].Type)

	second := s.createQuote()
	s.Equal("DEV2026-000002", second.Number)
}

func (s *QuoteServiceSuite) TestCreateCustomValidity() {
	days := 15
	q, err := s.service.Create(s.ctx, quotes.CreateRequest{
		ClientID:     s.client.ID,
		ValidityDays: &days,
		Items:        []lines.Item{{Description: "Pneus", Quantity: lines.MustDec("4"), UnitPriceHT: lines.MustDec("90"), VATRate: lines.MustDec("20")}},
	}, 1)
	s.Require().NoError(err)
	s.Equal(time.Date(2026, 5, 27, 0, 0, 0, 0, time.UTC), q.ValidityDate)
}

func (s *QuoteServiceSuite) TestCreateUnknownClient() {
	_, err := s.service.Create(s.ctx, quotes.CreateRequest{
		ClientID: 999,
		Items:    []lines.Item{{Description: "x", Quantity: lines.MustDec("1"), UnitPriceHT: lines.MustDec("1"), VATRate: lines.MustDec("20")}},
	}, 1)
	s.ErrorIs(err, shared.ErrNotFound)
	s.Zero(s.store.CounterValue(numbering.CounterQuote, 2026), "failed creation must not consume a number")
}

func (s *QuoteServiceSuite) TestCreateRejectsEmptyItems() {
	_, err := s.service.Create(s.ctx, quotes.CreateRequest{ClientID: s.client.ID}, 1)
	s.ErrorIs(err, shared.ErrValidation)
}

func (s *QuoteServiceSuite) TestCreateStorageFailureIsTransient() {
	s.store.FailNextWrite(errors.New("connection reset"))
	_, err := s.createQuoteErr()
	s.ErrorIs(err, shared.ErrTransient)
	s.Zero(s.store.CounterValue(numbering.CounterQuote, 2026))

	q := s.createQuote()
	s.Equal("DEV2026-000001", q.Number)
}

func (s *QuoteServiceSuite) createQuoteErr() (quotes.Quote, error) {
	return s.service.Create(s.ctx, quotes.CreateRequest{
		ClientID: s.client.ID,
		Items:    []lines.Item{{Description: "x", Quantity: lines.MustDec("1"), UnitPriceHT: lines.MustDec("1"), VATRate: lines.MustDec("20")}},
	}, 1)
}

func (s *QuoteServiceSuite) TestUpdateDraftRecomputesTotals() {
	q := s.createQuote()
	updated, err := s.service.Update(s.ctx, q.ID, quotes.UpdateRequest{
		Items: []lines.Item{{
			Description: "Vidange",
			Quantity:    lines.MustDec("2"),
			UnitPriceHT: lines.MustDec("100"),
			VATRate:     lines.MustDec("20"),
			Discount:    &lines.Discount{Type: lines.DiscountPercentage, Value: *lines.MustDec("10")},
		}},
	}, 1)
	s.Require().NoError(err)
	s.Equal("180.00", updated.TotalHT.StringFixed(2))
	s.Equal("216.00", updated.TotalTTC.StringFixed(2))
	s.Equal("20.00", updated.TotalDiscount.StringFixed(2))
	s.Equal(q.Number, updated.Number)
}

func (s *QuoteServiceSuite) TestUpdateRejectedOnceSent() {
	q := s.createQuote()
	_, err := s.service.Send(s.ctx, q.ID, 1)
	s.Require().NoError(err)

	_, err = s.service.Update(s.ctx, q.ID, quotes.UpdateRequest{
		Items: []lines.Item{{Description: "x", Quantity: lines.MustDec("1"), UnitPriceHT: lines.MustDec("1"), VATRate: lines.MustDec("20")}},
	}, 1)
	s.ErrorIs(err, shared.ErrPolicy)
}

func (s *QuoteServiceSuite) TestSendNotifies() {
	q := s.createQuote()
	sent, err := s.service.Send(s.ctx, q.ID, 1)
	s.Require().NoError(err)
	s.Equal(quotes.StatusSent, sent.Status)

	events := s.notifier.Events()
	s.Require().Len(events, 1)
	s.Equal(dispatch.KindQuoteSent, events[0].Kind)
	s.Equal(q.Number, events[0].Number)
	s.Equal("jeanne.dupont@example.test", events[0].Recipient)
	s.Equal(s.client.ID, events[0].ClientID)

	_, err = s.service.Send(s.ctx, q.ID, 1)
	s.ErrorIs(err, shared.ErrPolicy, "SENT -> SENT is not a transition")
}

func (s *QuoteServiceSuite) TestTransitionTable() {
	q := s.createQuote()

	_, err := s.service.Transition(s.ctx, q.ID, quotes.StatusAccepted, 1)
	s.ErrorIs(err, shared.ErrPolicy, "DRAFT cannot jump to ACCEPTED")

	for _, to := range []quotes.Status{quotes.StatusSent, quotes.StatusViewed, quotes.StatusAccepted} {
		got, err := s.service.Transition(s.ctx, q.ID, to, 1)
		s.Require().NoError(err)
		s.Equal(to, got.Status)
	}

	_, err = s.service.Transition(s.ctx, q.ID, quotes.StatusRejected, 1)
	s.ErrorIs(err, shared.ErrPolicy)

	events, err := s.service.Events(s.ctx, q.ID)
	s.Require().NoError(err)
	s.Len(events, 4)
	s.Equal(quotes.StatusViewed, events[3].FromStatus)
	s.Equal(quotes.StatusAccepted, events[3].ToStatus)
}

func (s *QuoteServiceSuite) TestTransitionUnknownStatus() {
	q := s.createQuote()
	_, err := s.service.Transition(s.ctx, q.ID, quotes.Status("ARCHIVED"), 1)
	s.ErrorIs(err, shared.ErrValidation)
}

func (s *QuoteServiceSuite) TestTerminalStatesStayTerminal() {
	q := s.createQuote()
	_, err := s.service.Transition(s.ctx, q.ID, quotes.StatusCancelled, 1)
	s.Require().NoError(err)
	for _, to := range []quotes.Status{quotes.StatusDraft, quotes.StatusSent, quotes.StatusAccepted} {
		_, err := s.service.Transition(s.ctx, q.ID, to, 1)
		s.ErrorIs(err, shared.ErrPolicy)
	}
}

func (s *QuoteServiceSuite) TestDeleteDraftOnly() {
	draft := s.createQuote()
	s.Require().NoError(s.service.Delete(s.ctx, draft.ID))
	_, err := s.service.Get(s.ctx, draft.ID)
	s.ErrorIs(err, shared.ErrNotFound)
	s.Zero(s.store.EventCount(draft.ID))

	sent := s.createQuote()
	_, err = s.service.Send(s.ctx, sent.ID, 1)
	s.Require().NoError(err)
	err = s.service.Delete(s.ctx, sent.ID)
	s.ErrorIs(err, shared.ErrPolicy)

	s.ErrorIs(s.service.Delete(s.ctx, 4242), shared.ErrNotFound)
}

func (s *QuoteServiceSuite) TestExpireOverdue() {
	first := s.createQuote()
	stale := s.createQuote()
	for _, id := range []int64{first.ID, stale.ID} {
		_, err := s.service.Send(s.ctx, id, 1)
		s.Require().NoError(err)
	}
	draft := s.createQuote()

	n, err := s.service.ExpireOverdue(s.ctx, fixedNow.AddDate(0, 0, 31))
	s.Require().NoError(err)
	s.Equal(2, n)

	got, err := s.service.Get(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(quotes.StatusExpired, got.Status)
	got, err = s.service.Get(s.ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal(quotes.StatusDraft, got.Status)
}

func (s *QuoteServiceSuite) TestListFilters() {
	a := s.createQuote()
	s.createQuote()
	_, err := s.service.Send(s.ctx, a.ID, 1)
	s.Require().NoError(err)

	sent := quotes.StatusSent
	res, err := s.service.List(s.ctx, quotes.ListFilters{Status: &sent})
	s.Require().NoError(err)
	s.Equal(1, res.Total)
	s.Equal(a.ID, res.Items[0].ID)

	all, err := s.service.List(s.ctx, quotes.ListFilters{Limit: 1})
	s.Require().NoError(err)
	s.Equal(2, all.Total)
	s.Len(all.Items, 1)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, quotes.CanTransition(quotes.StatusDraft, quotes.StatusSent))
	assert.True(t, quotes.CanTransition(quotes.StatusSent, quotes.StatusExpired))
	assert.True(t, quotes.CanTransition(quotes.StatusViewed, quotes.StatusCancelled))
	assert.False(t, quotes.CanTransition(quotes.StatusDraft, quotes.StatusViewed))
	assert.False(t, quotes.CanTransition(quotes.StatusExpired, quotes.StatusSent))
	assert.False(t, quotes.CanTransition(quotes.StatusSent, quotes.StatusSent))
	require.True(t, quotes.StatusRejected.Terminal())
	require.False(t, quotes.StatusAccepted.Terminal())
}

func TestQuoteJSONCarriesTotalRemise(t *testing.T) {
	items := []lines.Item{{
		Description: "Pare-brise",
		Quantity:    lines.MustDec("2"),
		UnitPriceHT: lines.MustDec("100"),
		VATRate:     lines.MustDec("20"),
		Discount:    &lines.Discount{Type: lines.DiscountPercentage, Value: *lines.MustDec("10")},
	}}
	q := quotes.Quote{ID: 5, Number: "DEV2026-000005", Status: quotes.StatusDraft, Items: items, Totals: lines.ComputeTotals(items)}

	raw, err := json.Marshal(q)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "20", body["totalRemise"])
	assert.Equal(t, body["totalDiscount"], body["totalRemise"])
	assert.Equal(t, "216", body["totalTTC"])
	assert.Equal(t, "DEV2026-000005", body["number"])

	var back quotes.Quote
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.TotalDiscount.Equal(q.TotalDiscount))
}
