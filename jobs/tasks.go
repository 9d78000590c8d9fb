package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atelier-garage/garage/internal/dispatch"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMaintenance holds periodic housekeeping tasks.
	QueueMaintenance = "maintenance"

	// TaskDeliverDocument sends a quote or invoice notification to its client.
	TaskDeliverDocument = "document:deliver"
	// TaskQuoteExpiry marks overdue quotes as EXPIRED.
	TaskQuoteExpiry = "quotes:expire"
	// TaskIdempotencyCleanup purges stale payment idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewDeliverDocumentTask wraps a dispatch event. Each event is delivered at
// most once per document and kind for a day.
func NewDeliverDocumentTask(e dispatch.Event) (*asynq.Task, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliverDocument, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.TaskID(fmt.Sprintf("%s:%d:%d", e.Kind, e.DocumentID, e.OccurredAt.Unix())),
		asynq.Retention(24*time.Hour),
	), nil
}

// ExpiryPayload optionally pins the sweep date; zero means now.
type ExpiryPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// NewQuoteExpiryTask builds the sweep task.
func NewQuoteExpiryTask() (*asynq.Task, error) {
	body, err := json.Marshal(ExpiryPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteExpiry, body, asynq.Queue(QueueMaintenance)), nil
}

// CleanupPayload carries the retention window in hours.
type CleanupPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

// NewIdempotencyCleanupTask builds the purge task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{OlderThanHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueMaintenance)), nil
}
