package parts

// PartForm carries the mutable fields for create and update requests.
type PartForm struct {
	SKU          string  `json:"sku" validate:"required,max=40"`
	Name         string  `json:"name" validate:"required,max=120"`
	Category     string  `json:"category" validate:"max=60"`
	BuyingPrice  float64 `json:"buying_price" validate:"gte=0"`
	SellingPrice float64 `json:"selling_price" validate:"gte=0"`
	ReorderLevel int64   `json:"reorder_level" validate:"gte=0"`
	IsActive     bool    `json:"is_active"`
}

// ListFilters narrows part listings.
type ListFilters struct {
	Category string
	Search   string
	IsActive *bool
	Page     int
	Limit    int
}
