package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-field/internal/platform/db"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

// Repository defines delivery persistence.
type Repository interface {
	GetOrder(ctx context.Context, id int64) (*Order, error)
	GetDelivery(ctx context.Context, id int64) (*Delivery, error)
	ListDeliveries(ctx context.Context, orderID int64) ([]Delivery, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes performed while creating a delivery.
type TxRepository interface {
	HighestNumber(ctx context.Context, prefix string) (string, error)
	InsertDelivery(ctx context.Context, d Delivery) (Delivery, error)
	InsertAllocation(ctx context.Context, a Allocation) (Allocation, error)
	IncrementDelivered(ctx context.Context, lineID int64, qty float64) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetOrder(ctx context.Context, id int64) (*Order, error) {
	const query = `
		SELECT id, number, client_name, COALESCE(client_email, ''), status, created_at
		FROM client_orders
		WHERE id = $1`
	var o Order
	err := r.pool.QueryRow(ctx, query, id).Scan(&o.ID, &o.Number, &o.ClientName, &o.ClientEmail, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NewNotFound("order", id)
		}
		return nil, shared.Persistence("get order", err)
	}

	const linesQuery = `
		SELECT id, order_id, product_code, description, unit,
		       qty_ordered::float8, unit_price::float8, qty_delivered::float8,
		       COALESCE(comment, ''), line_order
		FROM client_order_lines
		WHERE order_id = $1
		ORDER BY line_order, id`
	rows, err := r.pool.Query(ctx, linesQuery, id)
	if err != nil {
		return nil, shared.Persistence("list order lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductCode, &l.Description, &l.Unit,
			&l.Ordered, &l.UnitPrice, &l.Delivered, &l.Comment, &l.LineOrder); err != nil {
			return nil, shared.Persistence("scan order line", err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("list order lines", err)
	}
	return &o, nil
}

func (r *repository) GetDelivery(ctx context.Context, id int64) (*Delivery, error) {
	const query = `
		SELECT id, number, order_id, delivery_date, carrier_company, tracking_number,
		       carrier_contact, special_instructions, status, created_at
		FROM deliveries
		WHERE id = $1`
	d, err := scanDelivery(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NewNotFound("delivery", id)
		}
		return nil, shared.Persistence("get delivery", err)
	}
	allocations, err := r.allocations(ctx, []int64{d.ID})
	if err != nil {
		return nil, err
	}
	d.Allocations = allocations[d.ID]
	return &d, nil
}

func (r *repository) ListDeliveries(ctx context.Context, orderID int64) ([]Delivery, error) {
	const query = `
		SELECT id, number, order_id, delivery_date, carrier_company, tracking_number,
		       carrier_contact, special_instructions, status, created_at
		FROM deliveries
		WHERE order_id = $1
		ORDER BY number`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, shared.Persistence("list deliveries", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	var ids []int64
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, shared.Persistence("scan delivery", err)
		}
		deliveries = append(deliveries, d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("list deliveries", err)
	}
	if len(ids) == 0 {
		return deliveries, nil
	}
	allocations, err := r.allocations(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range deliveries {
		deliveries[i].Allocations = allocations[deliveries[i].ID]
	}
	return deliveries, nil
}

func (r *repository) allocations(ctx context.Context, deliveryIDs []int64) (map[int64][]Allocation, error) {
	const query = `
		SELECT id, delivery_id, order_line_id, quantity::float8
		FROM delivery_lines
		WHERE delivery_id = ANY($1)
		ORDER BY delivery_id, id`
	rows, err := r.pool.Query(ctx, query, deliveryIDs)
	if err != nil {
		return nil, shared.Persistence("list allocations", err)
	}
	defer rows.Close()
	out := make(map[int64][]Allocation, len(deliveryIDs))
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.DeliveryID, &a.OrderLineID, &a.Quantity); err != nil {
			return nil, shared.Persistence("scan allocation", err)
		}
		out[a.DeliveryID] = append(out[a.DeliveryID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("list allocations", err)
	}
	return out, nil
}

// HighestNumber returns the greatest well-formed number under prefix, or "".
// Suffixes compare numerically so 1000 outranks 999.
func (t *txRepository) HighestNumber(ctx context.Context, prefix string) (string, error) {
	const query = `
		SELECT number
		FROM deliveries
		WHERE number ~ $1
		ORDER BY substr(number, $2)::numeric DESC
		LIMIT 1`
	var number string
	err := t.tx.QueryRow(ctx, query, NumberPattern(prefix), len(prefix)+2).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", shared.Persistence("highest delivery number", err)
	}
	return number, nil
}

func (t *txRepository) InsertDelivery(ctx context.Context, d Delivery) (Delivery, error) {
	const query = `
		INSERT INTO deliveries (
			number, order_id, delivery_date, carrier_company, tracking_number,
			carrier_contact, special_instructions, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, number, order_id, delivery_date, carrier_company, tracking_number,
		          carrier_contact, special_instructions, status, created_at`
	created, err := scanDelivery(t.tx.QueryRow(ctx, query,
		d.Number, d.OrderID, d.DeliveryDate, d.Carrier.Company, d.Carrier.TrackingNumber,
		d.Carrier.Contact, d.SpecialInstructions, d.Status,
	))
	if err != nil {
		return Delivery{}, shared.Persistence("insert delivery", err)
	}
	return created, nil
}

func (t *txRepository) InsertAllocation(ctx context.Context, a Allocation) (Allocation, error) {
	const query = `
		INSERT INTO delivery_lines (delivery_id, order_line_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := t.tx.QueryRow(ctx, query, a.DeliveryID, a.OrderLineID, a.Quantity).Scan(&a.ID); err != nil {
		return Allocation{}, shared.Persistence("insert allocation", err)
	}
	return a, nil
}

// IncrementDelivered adds qty to a line only while the result stays within the
// ordered quantity.
func (t *txRepository) IncrementDelivered(ctx context.Context, lineID int64, qty float64) error {
	const query = `
		UPDATE client_order_lines
		SET qty_delivered = qty_delivered + $2::numeric, updated_at = $3
		WHERE id = $1 AND qty_delivered + $2::numeric <= qty_ordered`
	tag, err := t.tx.Exec(ctx, query, lineID, qty, time.Now().UTC())
	if err != nil {
		return shared.Persistence("increment delivered", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRemainingExceeded
	}
	return nil
}

func (t *txRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE client_orders SET status = $2, updated_at = $3 WHERE id = $1`, orderID, status, time.Now().UTC())
	if err != nil {
		return shared.Persistence("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFound("order", orderID)
	}
	return nil
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.Number, &d.OrderID, &d.DeliveryDate, &d.Carrier.Company,
		&d.Carrier.TrackingNumber, &d.Carrier.Contact, &d.SpecialInstructions, &d.Status, &d.CreatedAt)
	return d, err
}
