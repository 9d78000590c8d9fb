package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/atelier-garage/garage/internal/dispatch"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DeliverySink enqueues dispatch events as TaskDeliverDocument tasks.
type DeliverySink struct {
	enqueuer Enqueuer
}

// NewDeliverySink wraps an asynq client.
func NewDeliverySink(enqueuer Enqueuer) *DeliverySink {
	return &DeliverySink{enqueuer: enqueuer}
}

// Deliver implements dispatch.Sink. A task already queued for the same event
// is not an error.
func (s *DeliverySink) Deliver(ctx context.Context, e dispatch.Event) error {
	task, err := NewDeliverDocumentTask(e)
	if err != nil {
		return err
	}
	if _, err := s.enqueuer.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return err
	}
	return nil
}
