package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-field/internal/jobs"
	"github.com/odyssey-erp/odyssey-field/internal/reporting"
)

const (
	// TaskInventoryVariationReport mails the trailing inventory variation report.
	TaskInventoryVariationReport = "report:inventory-variation"
	// InventoryVariationCron runs the report on Monday mornings.
	InventoryVariationCron = "0 6 * * 1"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// InventoryVariationPayload carries scheduling metadata.
type InventoryVariationPayload struct {
	Trigger string `json:"trigger"`
}

// NewInventoryVariationTask constructs the scheduled report task.
func NewInventoryVariationTask(trigger string) (*asynq.Task, error) {
	body, err := json.Marshal(InventoryVariationPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryVariationReport, body, asynq.Queue(QueueDefault)), nil
}

// VariationReporter computes the trailing variation report.
type VariationReporter interface {
	TrailingVariationReport(ctx context.Context) (*reporting.VariationReport, error)
}

// InventoryVariationJob mails the trailing variation report.
type InventoryVariationJob struct {
	Reports    VariationReporter
	Mail       MailQueue
	From       string
	Recipients []string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewInventoryVariationJob initialises the report handler.
func NewInventoryVariationJob(reports VariationReporter, mail MailQueue, from string, recipients []string, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryVariationJob {
	return &InventoryVariationJob{
		Reports:    reports,
		Mail:       mail,
		From:       from,
		Recipients: recipients,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the report.
func (j *InventoryVariationJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reports == nil || j.Mail == nil {
		return errors.New("inventory variation: handler not configured")
	}
	var payload InventoryVariationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskInventoryVariationReport)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	if len(j.Recipients) == 0 {
		logger.Warn("no report recipients configured")
		return nil
	}

	report, err := j.Reports.TrailingVariationReport(ctx)
	if err != nil {
		logger.Error("build variation report", slog.Any("error", err))
		return err
	}

	subject, body := composeVariationReport(report)
	sent, err := enqueueMails(ctx, j.Mail, j.From, subject, body, j.Recipients)
	j.metrics().AddMails(TaskInventoryVariationReport, sent)
	if err != nil {
		logger.Error("enqueue report mail", slog.Any("error", err))
		return err
	}

	logger.Info("inventory variation report queued",
		slog.Int("products", len(report.Products)),
		slog.Int("movements", report.Movements),
		slog.Int("mails", sent),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func composeVariationReport(report *reporting.VariationReport) (string, string) {
	from := report.From.Format("2006-01-02")
	to := report.To.AddDate(0, 0, -1).Format("2006-01-02")
	subject := fmt.Sprintf("Inventory variation %s to %s", from, to)

	var b strings.Builder
	fmt.Fprintf(&b, "%d movements between %s and %s.\n\n", report.Movements, from, to)
	fmt.Fprintf(&b, "Entries: %s (cost %s)\n", formatQty(report.Totals.Entries), formatMoney(report.Totals.EntriesCost))
	fmt.Fprintf(&b, "Exits: %s (cost %s)\n", formatQty(report.Totals.Exits), formatMoney(report.Totals.ExitsCost))
	fmt.Fprintf(&b, "Adjustments: %s\n", formatQty(report.Totals.Adjustments))
	fmt.Fprintf(&b, "Net: %s\n", formatQty(report.Totals.Net))
	if len(report.Products) > 0 {
		b.WriteString("\nBy product:\n")
		for _, p := range report.Products {
			fmt.Fprintf(&b, "- %s: in %s, out %s, adjust %s, net %s\n",
				p.ProductCode, formatQty(p.Entries), formatQty(p.Exits), formatQty(p.Adjustments), formatQty(p.Net))
		}
	}
	return subject, b.String()
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func (j *InventoryVariationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInventoryVariationReport))
	}
	return slog.Default().With(slog.String("job", TaskInventoryVariationReport))
}

func (j *InventoryVariationJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *InventoryVariationJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
