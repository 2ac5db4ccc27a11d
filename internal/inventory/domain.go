package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-field/internal/ledger"
)

// MovementType enumerates inventory movement directions.
type MovementType string

const (
	MovementIn     MovementType = "IN"
	MovementOut    MovementType = "OUT"
	MovementAdjust MovementType = "ADJUST"
)

// StockSource names the table holding a product's stock level.
type StockSource string

const (
	SourceProducts     StockSource = "products"
	SourceNonInventory StockSource = "non_inventory_items"
)

// stockSources is the lookup order for a product code.
var stockSources = []StockSource{SourceProducts, SourceNonInventory}

// ErrStockNotFound is returned when a code has no stock record in a source.
var ErrStockNotFound = errors.New("inventory: stock record not found")

// StockItem is the current stock level of a product code.
type StockItem struct {
	Source      StockSource `json:"source"`
	ProductCode string      `json:"product_code"`
	Name        string      `json:"name"`
	Quantity    float64     `json:"quantity"`
}

// Movement is one append-only stock change. Quantity is always positive; the
// direction lives in Type.
type Movement struct {
	ID            int64        `json:"id"`
	ProductCode   string       `json:"product_code"`
	Type          MovementType `json:"type"`
	Quantity      float64      `json:"quantity"`
	UnitCost      float64      `json:"unit_cost"`
	TotalCost     float64      `json:"total_cost"`
	ReferenceType string       `json:"reference_type"`
	ReferenceID   int64        `json:"reference_id"`
	Notes         string       `json:"notes"`
	CreatedAt     time.Time    `json:"created_at"`
}

// DocumentKind identifies what produced a posting.
type DocumentKind string

const (
	KindDeliveryNote DocumentKind = "delivery_note"
	KindWorkOrder    DocumentKind = "work_order"
)

// MaterialLine is a document line that may move stock. A positive quantity
// leaves stock, a negative one returns it.
type MaterialLine struct {
	ProductCode *string         `json:"product_code"`
	Description string          `json:"description"`
	Quantity    ledger.Quantity `json:"quantity"`
	UnitPrice   ledger.Quantity `json:"unit_price"`
}

// Code returns the trimmed product code or "".
func (l MaterialLine) Code() string {
	if l.ProductCode == nil {
		return ""
	}
	return strings.TrimSpace(*l.ProductCode)
}

// Document is a signed delivery note or work order ready for posting.
type Document struct {
	Kind       DocumentKind   `json:"kind"`
	ID         int64          `json:"id"`
	Number     string         `json:"number"`
	ClientName string         `json:"client_name"`
	Credit     bool           `json:"credit"`
	Lines      []MaterialLine `json:"lines"`
}

// PostingKey identifies the document for at-most-once posting.
func (d Document) PostingKey() string {
	return fmt.Sprintf("%s:%d", d.Kind, d.ID)
}

func (d Document) notes() string {
	credit := "no"
	if d.Credit {
		credit = "yes"
	}
	return fmt.Sprintf("%s %s | client: %s | credit: %s", d.Kind, d.Number, d.ClientName, credit)
}

// SkippedLine reports a line that produced no movement and no error.
type SkippedLine struct {
	Line        int    `json:"line"`
	ProductCode string `json:"product_code,omitempty"`
	Reason      string `json:"reason"`
}

// LineFailure reports a line whose posting failed.
type LineFailure struct {
	Line        int    `json:"line"`
	ProductCode string `json:"product_code"`
	Stage       string `json:"stage"`
	Error       string `json:"error"`
}

// PostingResult summarises one PostDocument call.
type PostingResult struct {
	RunID    string        `json:"run_id"`
	Document string        `json:"document"`
	Posted   []Movement    `json:"posted"`
	Skipped  []SkippedLine `json:"skipped"`
	Failed   []LineFailure `json:"failed"`
}

// AdjustmentRequest sets a product's stock to a counted quantity.
type AdjustmentRequest struct {
	ProductCode     string  `json:"product_code" validate:"required,max=64"`
	CountedQuantity float64 `json:"counted_quantity" validate:"gte=0"`
	UnitCost        float64 `json:"unit_cost" validate:"gte=0"`
	Notes           string  `json:"notes" validate:"max=500"`
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	ProductCode string
	Type        MovementType
	From        time.Time
	To          time.Time
	Limit       int
}
