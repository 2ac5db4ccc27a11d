package delivery

import (
	"time"

	"github.com/odyssey-erp/odyssey-field/internal/ledger"
)

// OrderStatus tracks a client purchase order through delivery.
type OrderStatus string

const (
	OrderStatusDraft    OrderStatus = "draft"
	OrderStatusPartial  OrderStatus = "partial"
	OrderStatusComplete OrderStatus = "complete"
)

// Status of a delivery document. Documents are created prepared; later
// send/sign events are recorded outside this package.
type Status string

const StatusPrepared Status = "prepared"

// Order is a client purchase order with its lines.
type Order struct {
	ID          int64       `json:"id"`
	Number      string      `json:"number"`
	ClientName  string      `json:"client_name"`
	ClientEmail string      `json:"client_email,omitempty"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	Lines       []OrderLine `json:"lines"`
}

// OrderLine is one ordered product. Delivered only ever grows and never
// exceeds Ordered.
type OrderLine struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	ProductCode string  `json:"product_code"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Ordered     float64 `json:"ordered"`
	UnitPrice   float64 `json:"unit_price"`
	Delivered   float64 `json:"delivered"`
	Comment     string  `json:"comment,omitempty"`
	LineOrder   int     `json:"line_order"`
}

// Ledger projects the line onto the quantity ledger.
func (l OrderLine) Ledger() ledger.Line {
	return ledger.Line{Ordered: l.Ordered, Delivered: l.Delivered}
}

// Remaining returns the quantity still deliverable.
func (l OrderLine) Remaining() float64 {
	return ledger.RemainingQuantity(l.Ledger())
}

// Line looks up an order line by id.
func (o *Order) Line(id int64) (OrderLine, bool) {
	for _, line := range o.Lines {
		if line.ID == id {
			return line, true
		}
	}
	return OrderLine{}, false
}

// LedgerLines projects every order line onto the quantity ledger.
func (o *Order) LedgerLines() []ledger.Line {
	lines := make([]ledger.Line, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, line.Ledger())
	}
	return lines
}

// Carrier describes who transports a delivery.
type Carrier struct {
	Company        string `json:"company,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Contact        string `json:"contact,omitempty"`
}

// Delivery is a delivery slip created against one order.
type Delivery struct {
	ID                  int64        `json:"id"`
	Number              string       `json:"number"`
	OrderID             int64        `json:"order_id"`
	DeliveryDate        time.Time    `json:"delivery_date"`
	Carrier             Carrier      `json:"carrier"`
	SpecialInstructions string       `json:"special_instructions,omitempty"`
	Status              Status       `json:"status"`
	CreatedAt           time.Time    `json:"created_at"`
	Allocations         []Allocation `json:"allocations"`
}

// Allocation records the quantity of one order line shipped on a delivery.
type Allocation struct {
	ID          int64   `json:"id"`
	DeliveryID  int64   `json:"delivery_id"`
	OrderLineID int64   `json:"order_line_id"`
	Quantity    float64 `json:"quantity"`
}

// SelectedLine is a caller's request to ship Quantity of an order line.
type SelectedLine struct {
	OrderLineID int64
	Quantity    float64
}

// CreateDeliveryRequest carries everything needed to create a delivery.
type CreateDeliveryRequest struct {
	OrderID             int64
	DeliveryDate        time.Time
	Carrier             Carrier
	SpecialInstructions string
	Lines               []SelectedLine
}
