package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-field/internal/ledger"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

// Config groups aggregator settings.
type Config struct {
	// VariationDays is the trailing window of the default variation report.
	VariationDays int
	// Location decides where a reporting day starts.
	Location *time.Location
}

// Service builds read-only confirmation and variation views.
type Service struct {
	repo   Repository
	cache  *Cache
	cfg    Config
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs the aggregator. cache may be nil.
func NewService(repo Repository, cache *Cache, cfg Config, logger *slog.Logger) *Service {
	if cfg.VariationDays <= 0 {
		cfg.VariationDays = 7
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "reporting")),
		now:    time.Now,
	}
}

// BuildConfirmation assembles the per-line ordered, delivered-to-date and
// backorder view of an order. Concurrent calls for one order share a load.
func (s *Service) BuildConfirmation(ctx context.Context, orderID int64) (*Confirmation, error) {
	key := "confirmation:" + strconv.FormatInt(orderID, 10)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.buildConfirmation(context.WithoutCancel(ctx), orderID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		conf := *res.Val.(*Confirmation)
		conf.Lines = append([]ConfirmationLine(nil), conf.Lines...)
		return &conf, nil
	}
}

func (s *Service) buildConfirmation(ctx context.Context, orderID int64) (*Confirmation, error) {
	var (
		header    OrderHeader
		lines     []OrderLine
		delivered map[string]float64
		supplier  []ledger.SupplierLine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		header, err = s.repo.OrderHeader(gctx, orderID)
		return err
	})
	g.Go(func() error {
		var err error
		lines, err = s.repo.OrderLines(gctx, orderID)
		return err
	})
	g.Go(func() error {
		var err error
		delivered, err = s.repo.DeliveredByProduct(gctx, orderID)
		return err
	})
	g.Go(func() error {
		var err error
		supplier, err = s.repo.SupplierLines(gctx, orderID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	conf := &Confirmation{
		OrderID:     header.ID,
		OrderNumber: header.Number,
		ClientName:  header.ClientName,
		ClientEmail: header.ClientEmail,
		OrderStatus: header.Status,
		Lines:       make([]ConfirmationLine, 0, len(lines)),
		GeneratedAt: s.now().UTC(),
	}
	ledgerLines := make([]ledger.Line, 0, len(lines))
	for _, l := range lines {
		line := ledger.Line{Ordered: l.Ordered, Delivered: l.Delivered}
		ledgerLines = append(ledgerLines, line)
		conf.Lines = append(conf.Lines, ConfirmationLine{
			OrderLineID:     l.ID,
			ProductCode:     l.ProductCode,
			Description:     l.Description,
			Unit:            l.Unit,
			Ordered:         l.Ordered,
			DeliveredToDate: delivered[l.ProductCode],
			Remaining:       ledger.RemainingQuantity(line),
			Backorder:       ledger.BackorderQuantity(l.ProductCode, supplier),
		})
	}
	conf.Summary = ledger.DeliveryStatus(ledgerLines)
	return conf, nil
}

// TrailingWindow returns the [from, to) range covering the last days calendar
// days up to and including now's day.
func TrailingWindow(now time.Time, days int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	to := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return to.AddDate(0, 0, -days), to
}

// DefaultWindow is TrailingWindow with the configured day count.
func (s *Service) DefaultWindow() (time.Time, time.Time) {
	return TrailingWindow(s.now(), s.cfg.VariationDays, s.cfg.Location)
}

// VariationReport sums entries, exits and adjustments created in [from, to).
func (s *Service) VariationReport(ctx context.Context, from, to time.Time) (*VariationReport, error) {
	if !from.Before(to) {
		return nil, shared.NewValidationError("from", "must be before to")
	}
	key, err := s.cache.BuildKey(ctx, "reporting", "variation", from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		return s.loadVariation(ctx, from, to)
	}
	var report VariationReport
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		return s.loadVariation(ctx, from, to)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// TrailingVariationReport is VariationReport over DefaultWindow.
func (s *Service) TrailingVariationReport(ctx context.Context) (*VariationReport, error) {
	from, to := s.DefaultWindow()
	return s.VariationReport(ctx, from, to)
}

// Invalidate drops cached reports after stock has moved.
func (s *Service) Invalidate(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return fmt.Errorf("reporting: bump cache: %w", err)
	}
	return nil
}

func (s *Service) loadVariation(ctx context.Context, from, to time.Time) (*VariationReport, error) {
	totals, err := s.repo.MovementTotals(ctx, from, to)
	if err != nil {
		return nil, err
	}
	report := &VariationReport{From: from, To: to, Products: []ProductVariation{}}
	byProduct := make(map[string]*ProductVariation)
	for _, t := range totals {
		pv, ok := byProduct[t.ProductCode]
		if !ok {
			pv = &ProductVariation{ProductCode: t.ProductCode}
			byProduct[t.ProductCode] = pv
		}
		pv.add(t)
		report.Totals.add(t)
		report.Movements += t.Count
	}
	for _, pv := range byProduct {
		pv.round()
		report.Products = append(report.Products, *pv)
	}
	sort.Slice(report.Products, func(i, j int) bool {
		return report.Products[i].ProductCode < report.Products[j].ProductCode
	})
	report.Totals.round()
	return report, nil
}

func (v *VariationTotals) add(t MovementTotal) {
	switch t.Type {
	case "IN":
		v.Entries += t.Quantity
		v.EntriesCost += t.Cost
	case "OUT":
		v.Exits += t.Quantity
		v.ExitsCost += t.Cost
	case "ADJUST":
		v.Adjustments += t.Quantity
		v.AdjustmentsCost += t.Cost
	}
}

func (v *VariationTotals) round() {
	v.Entries = ledger.RoundQuantity(v.Entries)
	v.Exits = ledger.RoundQuantity(v.Exits)
	v.Adjustments = ledger.RoundQuantity(v.Adjustments)
	v.EntriesCost = ledger.RoundMoney(v.EntriesCost)
	v.ExitsCost = ledger.RoundMoney(v.ExitsCost)
	v.AdjustmentsCost = ledger.RoundMoney(v.AdjustmentsCost)
	v.Net = ledger.RoundQuantity(v.Entries - v.Exits)
}
