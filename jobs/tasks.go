package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/beacon-api/beacon/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// Enqueuer is the subset of asynq.Client used by producers.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewWelcomeEmailTask builds the mail task dispatched after signup.
func NewWelcomeEmailTask(email, firstName string) (*asynq.Task, error) {
	return NewSendEmailTask(SendEmailPayload{
		To:      email,
		Subject: "Welcome to Beacon",
		Body:    fmt.Sprintf("Hello %s,\r\n\r\nYour account is ready. You can sign in right away.\r\n", firstName),
	})
}

// EmailSender delivers a single message.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSendEmailHandler returns the asynq handler for TaskTypeSendEmail tasks.
// An unmarshalable payload is skipped rather than retried. metrics may be nil.
func NewSendEmailHandler(sender EmailSender, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskTypeSendEmail)
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(fmt.Errorf("decode %s payload: %v: %w", TaskTypeSendEmail, err, asynq.SkipRetry))
		}
		if err := sender.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
			return tracker.End(fmt.Errorf("send email to %s: %w", payload.To, err))
		}
		if logger != nil {
			logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
		}
		return tracker.End(nil)
	}
}
