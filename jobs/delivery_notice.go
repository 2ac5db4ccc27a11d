package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-field/internal/dispatch"
	jobmetrics "github.com/odyssey-erp/odyssey-field/internal/jobs"
)

const (
	// TaskDeliveryNotice mails a delivery confirmation to the client.
	TaskDeliveryNotice = "delivery:notice"
)

// NewDeliveryNoticeTask wraps a notice into a task.
func NewDeliveryNoticeTask(notice dispatch.Notice) (*asynq.Task, error) {
	if notice.DeliveryNumber == "" {
		return nil, errors.New("delivery notice: number required")
	}
	body, err := json.Marshal(notice)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliveryNotice, body), nil
}

// deliveryNoticeOptions keys the task by delivery number so a notice still in
// the queue cannot be enqueued twice.
func deliveryNoticeOptions(number string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.TaskID("delivery-notice:" + number),
		asynq.MaxRetry(5),
	}
}

// DeliveryNoticeJob turns a queued notice into one mail per recipient.
type DeliveryNoticeJob struct {
	Mail    MailQueue
	From    string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDeliveryNoticeJob initialises the delivery notice handler.
func NewDeliveryNoticeJob(mail MailQueue, from string, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeliveryNoticeJob {
	return &DeliveryNoticeJob{Mail: mail, From: from, Logger: logger, Metrics: metrics}
}

// Handle processes TaskDeliveryNotice tasks.
func (j *DeliveryNoticeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Mail == nil {
		return errors.New("delivery notice: handler not configured")
	}
	var notice dispatch.Notice
	if err := json.Unmarshal(t.Payload(), &notice); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskDeliveryNotice)
	logger := j.logger().With(slog.String("delivery", notice.DeliveryNumber))

	subject, body := composeDeliveryNotice(notice)
	sent, err := enqueueMails(ctx, j.Mail, j.From, subject, body, notice.Recipients)
	j.metrics().AddMails(TaskDeliveryNotice, sent)
	if err != nil {
		logger.Error("enqueue notice mail", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("delivery notice queued", slog.Int("mails", sent))
	return tracker.End(nil)
}

func composeDeliveryNotice(notice dispatch.Notice) (string, string) {
	conf := notice.Confirmation
	subject := "Delivery " + notice.DeliveryNumber
	var b strings.Builder
	if conf == nil {
		fmt.Fprintf(&b, "Delivery %s has been dispatched.\n", notice.DeliveryNumber)
		return subject, b.String()
	}
	subject = fmt.Sprintf("Delivery %s for order %s", notice.DeliveryNumber, conf.OrderNumber)
	fmt.Fprintf(&b, "Dear %s,\n\n", conf.ClientName)
	fmt.Fprintf(&b, "Delivery %s for order %s has been dispatched. Status: %s (%d%% of lines complete).\n\n",
		notice.DeliveryNumber, conf.OrderNumber, conf.Summary.Status, conf.Summary.Percentage)
	for _, line := range conf.Lines {
		fmt.Fprintf(&b, "- %s %s: ordered %s, delivered %s, remaining %s",
			line.ProductCode, line.Description,
			formatQty(line.Ordered), formatQty(line.DeliveredToDate), formatQty(line.Remaining))
		if line.Backorder > 0 {
			fmt.Fprintf(&b, ", on backorder %s", formatQty(line.Backorder))
		}
		b.WriteString("\n")
	}
	return subject, b.String()
}

func (j *DeliveryNoticeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDeliveryNotice))
	}
	return slog.Default().With(slog.String("job", TaskDeliveryNotice))
}

func (j *DeliveryNoticeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
