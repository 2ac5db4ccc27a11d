package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-field/internal/ledger"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

// Repository reads the state needed by confirmations and reports.
type Repository interface {
	OrderHeader(ctx context.Context, orderID int64) (OrderHeader, error)
	OrderLines(ctx context.Context, orderID int64) ([]OrderLine, error)
	DeliveredByProduct(ctx context.Context, orderID int64) (map[string]float64, error)
	SupplierLines(ctx context.Context, orderID int64) ([]ledger.SupplierLine, error)
	MovementTotals(ctx context.Context, from, to time.Time) ([]MovementTotal, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL backed read repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) OrderHeader(ctx context.Context, orderID int64) (OrderHeader, error) {
	var h OrderHeader
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, client_name, COALESCE(client_email, ''), status
		FROM client_orders WHERE id = $1`, orderID).Scan(&h.ID, &h.Number, &h.ClientName, &h.ClientEmail, &h.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderHeader{}, shared.NewNotFound("order", orderID)
	}
	if err != nil {
		return OrderHeader{}, shared.Persistence("order header", err)
	}
	return h, nil
}

func (r *repository) OrderLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_code, description, unit, qty_ordered::float8, qty_delivered::float8, unit_price::float8
		FROM client_order_lines
		WHERE order_id = $1
		ORDER BY line_order, id`, orderID)
	if err != nil {
		return nil, shared.Persistence("order lines", err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OrderLine, error) {
		var l OrderLine
		err := row.Scan(&l.ID, &l.ProductCode, &l.Description, &l.Unit, &l.Ordered, &l.Delivered, &l.UnitPrice)
		return l, err
	})
	if err != nil {
		return nil, shared.Persistence("order lines", err)
	}
	return lines, nil
}

// DeliveredByProduct sums every allocation made under the order per product code.
func (r *repository) DeliveredByProduct(ctx context.Context, orderID int64) (map[string]float64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ol.product_code, COALESCE(SUM(dl.quantity), 0)::float8
		FROM delivery_lines dl
		JOIN deliveries d ON d.id = dl.delivery_id
		JOIN client_order_lines ol ON ol.id = dl.order_line_id
		WHERE d.order_id = $1
		GROUP BY ol.product_code`, orderID)
	if err != nil {
		return nil, shared.Persistence("delivered by product", err)
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var code string
		var qty float64
		if err := rows.Scan(&code, &qty); err != nil {
			return nil, shared.Persistence("delivered by product", err)
		}
		out[code] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("delivered by product", err)
	}
	return out, nil
}

func (r *repository) SupplierLines(ctx context.Context, orderID int64) ([]ledger.SupplierLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT spl.product_code, spl.qty_ordered::float8, spl.qty_received::float8
		FROM supplier_purchase_lines spl
		JOIN supplier_purchases sp ON sp.id = spl.purchase_id
		WHERE sp.client_order_id = $1`, orderID)
	if err != nil {
		return nil, shared.Persistence("supplier lines", err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.SupplierLine, error) {
		var l ledger.SupplierLine
		err := row.Scan(&l.ProductCode, &l.Ordered, &l.Received)
		return l, err
	})
	if err != nil {
		return nil, shared.Persistence("supplier lines", err)
	}
	return lines, nil
}

func (r *repository) MovementTotals(ctx context.Context, from, to time.Time) ([]MovementTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_code, movement_type, SUM(quantity)::float8, SUM(total_cost)::float8, COUNT(*)
		FROM inventory_movements
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY product_code, movement_type
		ORDER BY product_code, movement_type`, from, to)
	if err != nil {
		return nil, shared.Persistence("movement totals", err)
	}
	totals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (MovementTotal, error) {
		var t MovementTotal
		err := row.Scan(&t.ProductCode, &t.Type, &t.Quantity, &t.Cost, &t.Count)
		return t, err
	})
	if err != nil {
		return nil, shared.Persistence("movement totals", err)
	}
	return totals, nil
}
