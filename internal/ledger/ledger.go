// Package ledger holds the quantity arithmetic shared by delivery reconciliation,
// confirmation reporting and backorder tracking. It performs no I/O.
package ledger

import "math"

// Status summarises how far an order has been delivered.
type Status string

const (
	StatusEmpty    Status = "empty"
	StatusPending  Status = "pending"
	StatusPartial  Status = "partial"
	StatusComplete Status = "complete"
)

// Line is the ordered/delivered pair tracked per order line.
type Line struct {
	Ordered   float64
	Delivered float64
}

// SupplierLine is a read-only supplier purchase line linked to a client order.
type SupplierLine struct {
	ProductCode string
	Ordered     float64
	Received    float64
}

// Summary reports the delivery status of a set of order lines.
type Summary struct {
	Status         Status `json:"status"`
	Percentage     int    `json:"percentage"`
	FullyDelivered int    `json:"fully_delivered"`
	Total          int    `json:"total"`
}

// RemainingQuantity returns the quantity still deliverable on a line, never negative.
func RemainingQuantity(line Line) float64 {
	return math.Max(0, line.Ordered-line.Delivered)
}

// IsFullyDelivered reports whether delivered has reached ordered.
func IsFullyDelivered(line Line) bool {
	return line.Delivered >= line.Ordered
}

// DeliveryStatus classifies the lines of an order.
func DeliveryStatus(lines []Line) Summary {
	if len(lines) == 0 {
		return Summary{Status: StatusEmpty}
	}
	full := 0
	started := false
	for _, line := range lines {
		if IsFullyDelivered(line) {
			full++
		}
		if line.Delivered > 0 {
			started = true
		}
	}
	summary := Summary{
		FullyDelivered: full,
		Total:          len(lines),
		Percentage:     int(math.Round(100 * float64(full) / float64(len(lines)))),
	}
	switch {
	case full == len(lines):
		summary.Status = StatusComplete
	case started:
		summary.Status = StatusPartial
	default:
		summary.Status = StatusPending
	}
	return summary
}

// BackorderQuantity returns the supplier quantity ordered but not yet received
// for productCode, never negative.
func BackorderQuantity(productCode string, lines []SupplierLine) float64 {
	var ordered, received float64
	for _, line := range lines {
		if line.ProductCode != productCode {
			continue
		}
		ordered += line.Ordered
		received += line.Received
	}
	return math.Max(0, ordered-received)
}

// BackorderByProduct computes BackorderQuantity for every product code present in lines.
func BackorderByProduct(lines []SupplierLine) map[string]float64 {
	codes := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		codes[line.ProductCode] = struct{}{}
	}
	out := make(map[string]float64, len(codes))
	for code := range codes {
		out[code] = BackorderQuantity(code, lines)
	}
	return out
}
