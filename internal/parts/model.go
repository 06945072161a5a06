package parts

import (
	"time"
)

// Part represents a catalog entry for a spare part. Aggregate stock is not
// stored here: the authoritative quantity is the sum of batch remainders in
// the ledger.
type Part struct {
	ID           int64     `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	BuyingPrice  float64   `json:"buying_price"`
	SellingPrice float64   `json:"selling_price"`
	ReorderLevel int64     `json:"reorder_level"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
