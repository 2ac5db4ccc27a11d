package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-field/internal/ledger"
	"github.com/odyssey-erp/odyssey-field/internal/observability"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

const postingModule = "inventory_posting"

// PostingGuard records that a document has been posted.
type PostingGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// Locker serialises stock updates per product code.
type Locker interface {
	Do(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Config groups poster settings.
type Config struct {
	// Enabled turns document posting on. Adjustments are always allowed.
	Enabled bool
	LockTTL time.Duration
	// Location anchors the calendar days of movement queries.
	Location *time.Location
}

// Service posts inventory movements and keeps stock levels in step.
type Service struct {
	repo    Repository
	guard   PostingGuard
	locker  Locker
	cfg     Config
	logger  *slog.Logger
	metrics *observability.LedgerMetrics
}

// NewService builds the poster. guard, locker and metrics may be nil.
func NewService(repo Repository, guard PostingGuard, locker Locker, cfg Config, logger *slog.Logger, metrics *observability.LedgerMetrics) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		guard:   guard,
		locker:  locker,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "inventory")),
		metrics: metrics,
	}
}

// PostDocument turns each material line of doc into a stock movement. Lines
// without a code, with a quantity that rounds to zero at 4 decimal places or
// with an unknown code are skipped.
// A failing line is reported in the result and never stops the others; the
// returned error only covers the document as a whole.
func (s *Service) PostDocument(ctx context.Context, doc Document) (PostingResult, error) {
	result := PostingResult{RunID: uuid.NewString(), Document: doc.Number}
	if doc.Kind != KindDeliveryNote && doc.Kind != KindWorkOrder {
		return result, shared.NewValidationError("kind", "unsupported document kind %q", doc.Kind)
	}
	if doc.ID <= 0 {
		return result, shared.NewValidationError("id", "document id required")
	}
	logger := s.logger.With(
		slog.String("run_id", result.RunID),
		slog.String("kind", string(doc.Kind)),
		slog.String("document", doc.Number),
	)
	if !s.cfg.Enabled {
		logger.Info("inventory posting disabled, document ignored")
		return result, nil
	}
	if s.guard != nil {
		if err := s.guard.CheckAndInsert(ctx, doc.PostingKey(), postingModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.metrics.DuplicatePosting()
				logger.Warn("document already posted")
				return result, fmt.Errorf("%s: %w", doc.PostingKey(), shared.ErrAlreadyPosted)
			}
			return result, shared.Persistence("posting guard", err)
		}
	}

	notes := doc.notes()
	for i, line := range doc.Lines {
		n := i + 1
		code := line.Code()
		qty := ledger.RoundQuantity(line.Quantity.Float64())
		switch {
		case code == "":
			result.Skipped = append(result.Skipped, SkippedLine{Line: n, Reason: "no product code"})
			s.metrics.PostingLine(observability.PostingSkipped)
			continue
		case qty == 0:
			result.Skipped = append(result.Skipped, SkippedLine{Line: n, ProductCode: code, Reason: "zero quantity"})
			s.metrics.PostingLine(observability.PostingSkipped)
			continue
		}

		mv, found, err := s.postLine(ctx, doc, notes, n, code, qty, line.UnitPrice.Float64())
		switch {
		case err != nil:
			var perr *shared.PostingError
			if !errors.As(err, &perr) {
				stage := "transaction"
				if errors.Is(err, shared.ErrBusy) {
					stage = "lock"
				}
				perr = &shared.PostingError{ProductCode: code, Line: n, Stage: stage, Err: err}
			}
			logger.Error("post material line", slog.Int("line", n), slog.String("product_code", code),
				slog.String("stage", perr.Stage), slog.Any("error", perr.Err))
			result.Failed = append(result.Failed, LineFailure{Line: n, ProductCode: code, Stage: perr.Stage, Error: perr.Err.Error()})
			s.metrics.PostingLine(observability.PostingFailed)
		case !found:
			logger.Warn("product code not found in stock tables", slog.Int("line", n), slog.String("product_code", code))
			result.Skipped = append(result.Skipped, SkippedLine{Line: n, ProductCode: code, Reason: "unknown product code"})
			s.metrics.PostingLine(observability.PostingSkipped)
		default:
			result.Posted = append(result.Posted, mv)
			s.metrics.PostingLine(observability.PostingPosted)
		}
	}

	logger.Info("document posted",
		slog.Int("posted", len(result.Posted)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *Service) postLine(ctx context.Context, doc Document, notes string, n int, code string, qty, price float64) (Movement, bool, error) {
	direction := MovementOut
	if qty < 0 {
		direction = MovementIn
	}
	magnitude := math.Abs(qty)
	unitCost := math.Abs(price)

	var (
		posted Movement
		found  bool
	)
	err := s.withLock(ctx, shared.StockLockKey(code), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := resolveStock(ctx, tx, code)
			if errors.Is(err, ErrStockNotFound) {
				return nil
			}
			if err != nil {
				return &shared.PostingError{ProductCode: code, Line: n, Stage: "resolve stock", Err: err}
			}
			found = true

			next := item.Quantity - magnitude
			if direction == MovementIn {
				next = item.Quantity + magnitude
			}
			if err := tx.UpdateStock(ctx, item.Source, code, ledger.RoundQuantity(next)); err != nil {
				return &shared.PostingError{ProductCode: code, Line: n, Stage: "update stock", Err: err}
			}
			posted, err = tx.InsertMovement(ctx, Movement{
				ProductCode:   code,
				Type:          direction,
				Quantity:      magnitude,
				UnitCost:      unitCost,
				TotalCost:     ledger.RoundMoney(magnitude * unitCost),
				ReferenceType: string(doc.Kind),
				ReferenceID:   doc.ID,
				Notes:         notes,
			})
			if err != nil {
				return &shared.PostingError{ProductCode: code, Line: n, Stage: "insert movement", Err: err}
			}
			return nil
		})
	})
	if err != nil {
		return Movement{}, false, err
	}
	return posted, found, nil
}

// resolveStock looks the code up in each stock source in order.
func resolveStock(ctx context.Context, tx TxRepository, code string) (StockItem, error) {
	for _, source := range stockSources {
		item, err := tx.FindStockForUpdate(ctx, source, code)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrStockNotFound) {
			return StockItem{}, err
		}
	}
	return StockItem{}, ErrStockNotFound
}

// Adjust sets a product's stock to the counted quantity and records the
// difference as an ADJUST movement. It returns nil when nothing changed.
func (s *Service) Adjust(ctx context.Context, req AdjustmentRequest) (*Movement, error) {
	if req.ProductCode == "" {
		return nil, shared.NewValidationError("product_code", "required")
	}
	if req.CountedQuantity < 0 {
		return nil, shared.NewValidationError("counted_quantity", "must not be negative")
	}
	counted := ledger.RoundQuantity(req.CountedQuantity)

	var out *Movement
	err := s.withLock(ctx, shared.StockLockKey(req.ProductCode), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := resolveStock(ctx, tx, req.ProductCode)
			if errors.Is(err, ErrStockNotFound) {
				return shared.NewNotFound("product", req.ProductCode)
			}
			if err != nil {
				return err
			}
			diff := ledger.RoundQuantity(counted - item.Quantity)
			if diff == 0 {
				return nil
			}
			if err := tx.UpdateStock(ctx, item.Source, req.ProductCode, counted); err != nil {
				return err
			}
			qty := math.Abs(diff)
			unitCost := math.Abs(req.UnitCost)
			notes := fmt.Sprintf("stock count %s -> %s", formatQty(item.Quantity), formatQty(counted))
			if req.Notes != "" {
				notes += " | " + req.Notes
			}
			mv, err := tx.InsertMovement(ctx, Movement{
				ProductCode:   req.ProductCode,
				Type:          MovementAdjust,
				Quantity:      qty,
				UnitCost:      unitCost,
				TotalCost:     ledger.RoundMoney(qty * unitCost),
				ReferenceType: "stock_count",
				Notes:         notes,
			})
			if err != nil {
				return err
			}
			out = &mv
			return nil
		})
	})
	if err != nil {
		return nil, shared.Persistence("adjust stock", err)
	}
	if out != nil {
		s.logger.Info("stock adjusted", slog.String("product_code", req.ProductCode), slog.Float64("counted", counted))
	}
	return out, nil
}

// ListMovements returns movements matching filter, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, shared.NewValidationError("from", "must be before to")
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.Do(ctx, key, s.cfg.LockTTL, fn)
}

func formatQty(v float64) string {
	return fmt.Sprintf("%g", v)
}
