// Package dispatch sends delivery confirmations to the client and moves the
// shipped quantities out of stock.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-field/internal/delivery"
	"github.com/odyssey-erp/odyssey-field/internal/inventory"
	"github.com/odyssey-erp/odyssey-field/internal/ledger"
	"github.com/odyssey-erp/odyssey-field/internal/reporting"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

// Notice is the payload handed to a Notifier.
type Notice struct {
	DeliveryID     int64                   `json:"delivery_id"`
	DeliveryNumber string                  `json:"delivery_number"`
	Recipients     []string                `json:"recipients"`
	Confirmation   *reporting.Confirmation `json:"confirmation"`
}

// Notifier delivers a notice and returns an opaque message id.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) (string, error)
}

// Deliveries reads deliveries and their orders.
type Deliveries interface {
	GetDelivery(ctx context.Context, id int64) (*delivery.Delivery, error)
	GetOrder(ctx context.Context, orderID int64) (*delivery.Order, error)
}

// Confirmations builds the confirmation attached to a notice.
type Confirmations interface {
	BuildConfirmation(ctx context.Context, orderID int64) (*reporting.Confirmation, error)
	Invalidate(ctx context.Context) error
}

// Poster moves stock for a document.
type Poster interface {
	PostDocument(ctx context.Context, doc inventory.Document) (inventory.PostingResult, error)
}

// Config holds dispatch settings.
type Config struct {
	DefaultRecipients []string
}

// SendRequest selects the delivery to send.
type SendRequest struct {
	DeliveryID int64    `json:"delivery_id"`
	Recipients []string `json:"recipients"`
}

// SendResult reports the notice and the stock posting it triggered.
type SendResult struct {
	DeliveryID     int64                    `json:"delivery_id"`
	DeliveryNumber string                   `json:"delivery_number"`
	MessageID      string                   `json:"message_id"`
	Recipients     []string                 `json:"recipients"`
	Posting        *inventory.PostingResult `json:"posting,omitempty"`
	PostingError   string                   `json:"posting_error,omitempty"`
}

// Service orchestrates send and post.
type Service struct {
	deliveries    Deliveries
	confirmations Confirmations
	poster        Poster
	notifier      Notifier
	cfg           Config
	logger        *slog.Logger
}

// NewService wires the dispatch service.
func NewService(deliveries Deliveries, confirmations Confirmations, poster Poster, notifier Notifier, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deliveries:    deliveries,
		confirmations: confirmations,
		poster:        poster,
		notifier:      notifier,
		cfg:           cfg,
		logger:        logger.With(slog.String("component", "dispatch")),
	}
}

// Send notifies the client about a delivery and posts its lines to stock.
// Only loading and notification errors are returned; posting problems are
// logged and reported on the result.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.DeliveryID <= 0 {
		return nil, shared.NewValidationError("delivery_id", "required")
	}
	recipients := cleanRecipients(req.Recipients)
	if len(recipients) == 0 {
		recipients = cleanRecipients(s.cfg.DefaultRecipients)
	}
	if len(recipients) == 0 {
		return nil, shared.NewValidationError("recipients", "no recipients configured")
	}

	d, err := s.deliveries.GetDelivery(ctx, req.DeliveryID)
	if err != nil {
		return nil, err
	}
	order, err := s.deliveries.GetOrder(ctx, d.OrderID)
	if err != nil {
		return nil, err
	}
	conf, err := s.confirmations.BuildConfirmation(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: build confirmation: %w", err)
	}

	messageID, err := s.notifier.Notify(ctx, Notice{
		DeliveryID:     d.ID,
		DeliveryNumber: d.Number,
		Recipients:     recipients,
		Confirmation:   conf,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: notify %s: %w", d.Number, err)
	}

	result := &SendResult{
		DeliveryID:     d.ID,
		DeliveryNumber: d.Number,
		MessageID:      messageID,
		Recipients:     recipients,
	}
	logger := s.logger.With(slog.String("delivery", d.Number), slog.String("message_id", messageID))
	logger.Info("delivery notice sent", slog.Int("recipients", len(recipients)))

	posting, err := s.poster.PostDocument(ctx, DeliveryDocument(d, order))
	switch {
	case errors.Is(err, shared.ErrAlreadyPosted):
		logger.Info("delivery already posted to stock")
		result.PostingError = err.Error()
	case err != nil:
		logger.Error("stock posting failed", slog.Any("error", err))
		result.PostingError = err.Error()
	default:
		result.Posting = &posting
		if len(posting.Failed) > 0 {
			logger.Warn("stock posting incomplete",
				slog.Int("posted", len(posting.Posted)),
				slog.Int("failed", len(posting.Failed)))
		}
		if err := s.confirmations.Invalidate(ctx); err != nil {
			logger.Warn("report cache invalidation failed", slog.Any("error", err))
		}
	}
	return result, nil
}

// DeliveryDocument turns a delivery's allocations into a posting document.
// Allocations pointing at unknown order lines are carried without a product
// code so the poster skips them.
func DeliveryDocument(d *delivery.Delivery, order *delivery.Order) inventory.Document {
	doc := inventory.Document{
		Kind:       inventory.KindDeliveryNote,
		ID:         d.ID,
		Number:     d.Number,
		ClientName: order.ClientName,
		Lines:      make([]inventory.MaterialLine, 0, len(d.Allocations)),
	}
	for _, a := range d.Allocations {
		line, ok := order.Line(a.OrderLineID)
		ml := inventory.MaterialLine{Quantity: ledger.Quantity(a.Quantity)}
		if ok {
			code := line.ProductCode
			ml.ProductCode = &code
			ml.Description = line.Description
			ml.UnitPrice = ledger.Quantity(line.UnitPrice)
		}
		doc.Lines = append(doc.Lines, ml)
	}
	return doc
}

func cleanRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		key := strings.ToLower(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
