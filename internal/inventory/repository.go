package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-field/internal/platform/db"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

// Repository persists stock levels and movements.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// TxRepository performs the writes of a single line posting.
type TxRepository interface {
	FindStockForUpdate(ctx context.Context, source StockSource, code string) (StockItem, error)
	UpdateStock(ctx context.Context, source StockSource, code string, qty float64) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
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

// WithTx runs fn at ReadCommitted; rows are pinned with SELECT ... FOR UPDATE.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ProductCode != "" {
		add("product_code = $%d", filter.ProductCode)
	}
	if filter.Type != "" {
		add("movement_type = $%d", filter.Type)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	args = append(args, limit)

	query := `
		SELECT id, product_code, movement_type, quantity::float8, unit_cost::float8,
		       total_cost::float8, reference_type, reference_id, notes, created_at
		FROM inventory_movements`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf("\n\t\tORDER BY created_at DESC, id DESC\n\t\tLIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Persistence("list movements", err)
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductCode, &m.Type, &m.Quantity, &m.UnitCost,
			&m.TotalCost, &m.ReferenceType, &m.ReferenceID, &m.Notes, &m.CreatedAt); err != nil {
			return nil, shared.Persistence("scan movement", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("list movements", err)
	}
	return out, nil
}

func stockTable(source StockSource) (string, error) {
	switch source {
	case SourceProducts:
		return "products", nil
	case SourceNonInventory:
		return "non_inventory_items", nil
	default:
		return "", fmt.Errorf("inventory: unknown stock source %q", source)
	}
}

func (t *txRepository) FindStockForUpdate(ctx context.Context, source StockSource, code string) (StockItem, error) {
	table, err := stockTable(source)
	if err != nil {
		return StockItem{}, err
	}
	query := `SELECT code, name, stock_qty::float8 FROM ` + table + ` WHERE code = $1 FOR UPDATE`
	item := StockItem{Source: source}
	err = t.tx.QueryRow(ctx, query, code).Scan(&item.ProductCode, &item.Name, &item.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, ErrStockNotFound
	}
	if err != nil {
		return StockItem{}, shared.Persistence("find stock", err)
	}
	return item, nil
}

func (t *txRepository) UpdateStock(ctx context.Context, source StockSource, code string, qty float64) error {
	table, err := stockTable(source)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE `+table+` SET stock_qty = $2::numeric, updated_at = now() WHERE code = $1`, code, qty)
	if err != nil {
		return shared.Persistence("update stock", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

func (t *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	const query = `
		INSERT INTO inventory_movements (
			product_code, movement_type, quantity, unit_cost, total_cost,
			reference_type, reference_id, notes
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)
		RETURNING id, created_at`
	err := t.tx.QueryRow(ctx, query,
		m.ProductCode, m.Type, m.Quantity, m.UnitCost, m.TotalCost,
		m.ReferenceType, m.ReferenceID, m.Notes,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Movement{}, shared.Persistence("insert movement", err)
	}
	return m, nil
}
