package reporting

import (
	"time"

	"github.com/odyssey-erp/odyssey-field/internal/ledger"
)

// OrderHeader is the order data shown on a confirmation.
type OrderHeader struct {
	ID          int64
	Number      string
	ClientName  string
	ClientEmail string
	Status      string
}

// OrderLine is an order line as read for reporting.
type OrderLine struct {
	ID          int64
	ProductCode string
	Description string
	Unit        string
	Ordered     float64
	Delivered   float64
	UnitPrice   float64
}

// ConfirmationLine is one row of a client delivery confirmation.
type ConfirmationLine struct {
	OrderLineID     int64   `json:"order_line_id"`
	ProductCode     string  `json:"product_code"`
	Description     string  `json:"description"`
	Unit            string  `json:"unit"`
	Ordered         float64 `json:"ordered"`
	DeliveredToDate float64 `json:"delivered_to_date"`
	Remaining       float64 `json:"remaining"`
	Backorder       float64 `json:"backorder"`
}

// Confirmation summarises what has been delivered on an order.
type Confirmation struct {
	OrderID     int64              `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	ClientName  string             `json:"client_name"`
	ClientEmail string             `json:"client_email,omitempty"`
	OrderStatus string             `json:"order_status"`
	Summary     ledger.Summary     `json:"summary"`
	Lines       []ConfirmationLine `json:"lines"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// MovementTotal is the summed quantity and cost of one product and movement type.
type MovementTotal struct {
	ProductCode string
	Type        string
	Quantity    float64
	Cost        float64
	Count       int
}

// VariationTotals sums movements by direction. Net is entries minus exits.
type VariationTotals struct {
	Entries         float64 `json:"entries"`
	Exits           float64 `json:"exits"`
	Adjustments     float64 `json:"adjustments"`
	EntriesCost     float64 `json:"entries_cost"`
	ExitsCost       float64 `json:"exits_cost"`
	AdjustmentsCost float64 `json:"adjustments_cost"`
	Net             float64 `json:"net"`
}

// ProductVariation is VariationTotals for one product code.
type ProductVariation struct {
	ProductCode string `json:"product_code"`
	VariationTotals
}

// VariationReport covers movements created in [From, To).
type VariationReport struct {
	From      time.Time          `json:"from"`
	To        time.Time          `json:"to"`
	Movements int                `json:"movements"`
	Totals    VariationTotals    `json:"totals"`
	Products  []ProductVariation `json:"products"`
}
