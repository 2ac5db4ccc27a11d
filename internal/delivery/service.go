package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-field/internal/ledger"
	"github.com/odyssey-erp/odyssey-field/internal/observability"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

// Locker serialises a critical section across processes.
type Locker interface {
	Do(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Config groups reconciler settings.
type Config struct {
	// NumberPrefix is the document code ahead of the year-month, "BL" by default.
	NumberPrefix string
	// Location decides which year-month a delivery number falls in.
	Location *time.Location
	// NumberRetries bounds retries after a delivery number collision.
	NumberRetries int
	LockTTL       time.Duration
}

func (c Config) withDefaults() Config {
	if c.NumberPrefix == "" {
		c.NumberPrefix = DefaultNumberPrefix
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.NumberRetries < 0 {
		c.NumberRetries = 0
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	return c
}

// Service reconciles deliveries against client order lines.
type Service struct {
	repo    Repository
	locker  Locker
	cfg     Config
	logger  *slog.Logger
	metrics *observability.LedgerMetrics
	now     func() time.Time
}

// NewService builds the reconciler. locker and metrics may be nil.
func NewService(repo Repository, locker Locker, cfg Config, logger *slog.Logger, metrics *observability.LedgerMetrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		cfg:     cfg.withDefaults(),
		logger:  logger.With(slog.String("component", "delivery")),
		metrics: metrics,
		now:     func() time.Time { return time.Now() },
	}
}

// CreateDelivery validates the selected quantities against the order's
// remaining quantities and persists a numbered delivery, its allocations, the
// delivered increments and the order's partial status in one transaction.
func (s *Service) CreateDelivery(ctx context.Context, req CreateDeliveryRequest) (*Delivery, error) {
	if len(req.Lines) == 0 {
		return nil, shared.NewValidationError("lines", "no items selected")
	}
	order, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	lines, err := validateSelection(order, req.Lines)
	if err != nil {
		return nil, err
	}
	req.Lines = lines

	now := s.now().In(s.cfg.Location)
	prefix := NumberPrefix(s.cfg.NumberPrefix, now)
	if req.DeliveryDate.IsZero() {
		req.DeliveryDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	}

	var created *Delivery
	err = s.withLock(ctx, shared.DeliveryNumberLockKey(prefix), func(ctx context.Context) error {
		for attempt := 0; ; attempt++ {
			d, err := s.persist(ctx, order, req, prefix)
			if err == nil {
				created = d
				return nil
			}
			if !shared.IsUniqueViolation(err) || attempt >= s.cfg.NumberRetries {
				return err
			}
			s.metrics.NumberRetried()
			s.logger.Warn("delivery number collision, retrying",
				slog.String("prefix", prefix), slog.Int("attempt", attempt+1))
		}
	})
	if errors.Is(err, shared.ErrBusy) {
		s.logger.Warn("delivery number lock busy", slog.String("prefix", prefix), slog.Int64("order_id", req.OrderID))
		return nil, err
	}
	if err != nil {
		s.logger.Error("create delivery", slog.Int64("order_id", req.OrderID), slog.Any("error", err))
		return nil, shared.Persistence("create delivery", err)
	}

	s.metrics.DeliveryCreated(len(created.Allocations))
	s.logger.Info("delivery created",
		slog.String("number", created.Number),
		slog.Int64("order_id", order.ID),
		slog.Int("lines", len(created.Allocations)))
	return created, nil
}

func (s *Service) persist(ctx context.Context, order *Order, req CreateDeliveryRequest, prefix string) (*Delivery, error) {
	var out Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		highest, err := tx.HighestNumber(ctx, prefix)
		if err != nil {
			return err
		}
		d, err := tx.InsertDelivery(ctx, Delivery{
			Number:              NextNumber(prefix, highest),
			OrderID:             order.ID,
			DeliveryDate:        req.DeliveryDate,
			Carrier:             req.Carrier,
			SpecialInstructions: req.SpecialInstructions,
			Status:              StatusPrepared,
		})
		if err != nil {
			return err
		}
		for _, sel := range req.Lines {
			alloc, err := tx.InsertAllocation(ctx, Allocation{DeliveryID: d.ID, OrderLineID: sel.OrderLineID, Quantity: sel.Quantity})
			if err != nil {
				return err
			}
			if err := tx.IncrementDelivered(ctx, sel.OrderLineID, sel.Quantity); err != nil {
				if errors.Is(err, ErrRemainingExceeded) {
					return shared.NewLineValidationError(sel.OrderLineID, "remaining quantity exceeded")
				}
				return err
			}
			d.Allocations = append(d.Allocations, alloc)
		}
		if err := tx.UpdateOrderStatus(ctx, order.ID, OrderStatusPartial); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// validateSelection checks each selected line and returns the selection with
// quantities rounded to the stored 4 decimal places.
func validateSelection(order *Order, lines []SelectedLine) ([]SelectedLine, error) {
	out := make([]SelectedLine, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, sel := range lines {
		if _, dup := seen[sel.OrderLineID]; dup {
			return nil, shared.NewLineValidationError(sel.OrderLineID, "selected more than once")
		}
		seen[sel.OrderLineID] = struct{}{}

		line, ok := order.Line(sel.OrderLineID)
		if !ok {
			return nil, shared.NewLineValidationError(sel.OrderLineID, "does not belong to order %d", order.ID)
		}
		sel.Quantity = ledger.RoundQuantity(sel.Quantity)
		if sel.Quantity <= 0 {
			return nil, shared.NewLineValidationError(sel.OrderLineID, "quantity must be greater than zero")
		}
		if remaining := line.Remaining(); sel.Quantity > remaining {
			return nil, shared.NewLineValidationError(sel.OrderLineID, "remaining quantity exceeded: requested %s, remaining %s",
				formatQty(sel.Quantity), formatQty(remaining))
		}
		out = append(out, sel)
	}
	return out, nil
}

// CompleteOrder marks an order complete. Completion is never inferred from
// delivered quantities.
func (s *Service) CompleteOrder(ctx context.Context, orderID int64) (*Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == OrderStatusComplete {
		return order, nil
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderStatus(ctx, orderID, OrderStatusComplete)
	})
	if err != nil {
		return nil, shared.Persistence("complete order", err)
	}
	order.Status = OrderStatusComplete
	s.logger.Info("order completed", slog.Int64("order_id", orderID), slog.String("number", order.Number))
	return order, nil
}

// OrderStatus summarises delivery progress for an order.
func (s *Service) OrderStatus(ctx context.Context, orderID int64) (ledger.Summary, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.DeliveryStatus(order.LedgerLines()), nil
}

// GetOrder loads an order with its lines.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// GetDelivery loads a delivery with its allocations.
func (s *Service) GetDelivery(ctx context.Context, id int64) (*Delivery, error) {
	return s.repo.GetDelivery(ctx, id)
}

// ListDeliveries lists the deliveries of an order in number order.
func (s *Service) ListDeliveries(ctx context.Context, orderID int64) ([]Delivery, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListDeliveries(ctx, orderID)
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.Do(ctx, key, s.cfg.LockTTL, fn)
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
