package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/atelier-garage/garage/internal/dispatch"
	jobmetrics "github.com/atelier-garage/garage/internal/jobs"
)

// Message is an outbound client notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Transport sends composed messages to the outside world.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport writes messages to the logger instead of sending them.
type LogTransport struct {
	Logger *slog.Logger
}

// Send implements Transport.
func (t LogTransport) Send(_ context.Context, msg Message) error {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("document notification", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

// DeliveryJob turns dispatch events into client messages.
type DeliveryJob struct {
	Transport Transport
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	printer   *message.Printer
}

// NewDeliveryJob wires the delivery handler. Messages are written in French.
func NewDeliveryJob(transport Transport, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeliveryJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryJob{
		Transport: transport,
		Logger:    logger,
		Metrics:   metrics,
		printer:   message.NewPrinter(language.French),
	}
}

// Handle processes TaskDeliverDocument tasks.
func (j *DeliveryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Transport == nil {
		return errors.New("document delivery: handler not configured")
	}
	var e dispatch.Event
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		return fmt.Errorf("decode delivery payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskDeliverDocument)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger.With(slog.String("kind", string(e.Kind)), slog.String("number", e.Number))
	if e.Recipient == "" {
		logger.Info("client has no email address, skipping delivery")
		return nil
	}
	msg, err := j.Compose(e)
	if err != nil {
		logger.Error("compose notification", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := j.Transport.Send(ctx, msg); err != nil {
		logger.Warn("send notification", slog.Any("error", err))
		return err
	}
	j.Metrics.Delivered(string(e.Kind))
	return nil
}

// Compose renders the message for e.
func (j *DeliveryJob) Compose(e dispatch.Event) (Message, error) {
	p := j.printer
	if p == nil {
		p = message.NewPrinter(language.French)
	}
	amount := p.Sprintf("%.2f €", e.AmountTTC.Round(2).InexactFloat64())
	msg := Message{To: e.Recipient}
	switch e.Kind {
	case dispatch.KindQuoteSent:
		msg.Subject = p.Sprintf("Devis %s", e.Number)
		msg.Body = p.Sprintf("Bonjour,\n\nVeuillez trouver ci-joint le devis %s d'un montant de %s TTC.\n", e.Number, amount)
	case dispatch.KindInvoiceSent:
		msg.Subject = p.Sprintf("Facture %s", e.Number)
		msg.Body = p.Sprintf("Bonjour,\n\nVeuillez trouver ci-joint la facture %s d'un montant de %s TTC.\n", e.Number, amount)
		if e.DueDate != nil {
			msg.Body += p.Sprintf("Date d'échéance : %s.\n", e.DueDate.Format("02/01/2006"))
		}
	case dispatch.KindInvoicePaid:
		msg.Subject = p.Sprintf("Facture %s acquittée", e.Number)
		msg.Body = p.Sprintf("Bonjour,\n\nNous confirmons la réception du règlement intégral de la facture %s (%s TTC). Merci.\n", e.Number, amount)
	default:
		return Message{}, fmt.Errorf("unknown delivery kind %q", e.Kind)
	}
	return msg, nil
}
