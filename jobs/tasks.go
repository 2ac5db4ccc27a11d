package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	From    string `json:"from,omitempty"`
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

// MailQueue enqueues outgoing mail.
type MailQueue interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// NewSendEmailHandler returns the TaskTypeSendEmail handler. Mail transport is
// not wired yet; the message is logged.
func NewSendEmailHandler(logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskTypeSendEmail))
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if strings.TrimSpace(payload.To) == "" {
			logger.Warn("mail without recipient dropped", slog.String("subject", payload.Subject))
			return asynq.SkipRetry
		}
		logger.Info("send email",
			slog.String("to", payload.To),
			slog.String("subject", payload.Subject),
			slog.Int("body_bytes", len(payload.Body)))
		return nil
	}
}

func enqueueMails(ctx context.Context, queue MailQueue, from, subject, body string, recipients []string) (int, error) {
	sent := 0
	for _, to := range recipients {
		if _, err := queue.EnqueueSendEmail(ctx, SendEmailPayload{From: from, To: to, Subject: subject, Body: body}); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
