package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atelier-garage/garage/internal/jobs"
)

// QuoteExpirer is satisfied by *quotes.Service.
type QuoteExpirer interface {
	ExpireOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// QuoteExpiryJob sweeps SENT and VIEWED quotes past their validity date.
type QuoteExpiryJob struct {
	Quotes  QuoteExpirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewQuoteExpiryJob wires the sweep handler.
func NewQuoteExpiryJob(quotes QuoteExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuoteExpiryJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteExpiryJob{
		Quotes:  quotes,
		Logger:  logger,
		Metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes TaskQuoteExpiry tasks.
func (j *QuoteExpiryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Quotes == nil {
		return errors.New("quote expiry: handler not configured")
	}
	var payload ExpiryPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode expiry payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.clock()
	}

	tracker := j.Metrics.Track(TaskQuoteExpiry)
	defer func() { err = tracker.End(err) }()

	n, err := j.Quotes.ExpireOverdue(ctx, asOf)
	if err != nil {
		j.Logger.Error("expire quotes", slog.Int("expired", n), slog.Any("error", err))
		return err
	}
	j.Metrics.AddExpired(n)
	if n > 0 {
		j.Logger.Info("quotes expired", slog.Int("count", n), slog.Time("as_of", asOf))
	}
	return nil
}

// KeyJanitor is satisfied by *shared.IdempotencyStore.
type KeyJanitor interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob removes idempotency keys past their retention.
type IdempotencyCleanupJob struct {
	Keys    KeyJanitor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	payload := CleanupPayload{OlderThanHours: 72}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode cleanup payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.OlderThanHours <= 0 {
		return fmt.Errorf("retention must be positive: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	removed, err := j.Keys.Cleanup(ctx, time.Duration(payload.OlderThanHours)*time.Hour)
	if err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("idempotency keys purged", slog.Int64("removed", removed))
	}
	return nil
}
