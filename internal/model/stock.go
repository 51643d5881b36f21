package model

import "github.com/shopspring/decimal"

// Stock unit statuses.
const (
	UnitInStock   = "in_stock"
	UnitAllocated = "allocated"
)

// StockUnit is one serial-tagged unit received through a purchase.
type StockUnit struct {
	ID         int64  `json:"id"`
	ItemName   string `json:"item_name"`
	Serial     string `json:"serial"`
	Status     string `json:"status"`
	PurchaseID int64  `json:"purchase_id"`
}

// Purchase records stock bought from a supplier.
type Purchase struct {
	ID          int64           `json:"id"`
	Supplier    string          `json:"supplier"`
	PurchasedBy string          `json:"purchased_by"`
	CreatedAt   string          `json:"created_at"`
	Lines       []PurchaseLine  `json:"lines"`
	Total       decimal.Decimal `json:"total"`
}

// PurchaseLine is one item line of a purchase.
type PurchaseLine struct {
	ID        int64           `json:"id"`
	ItemName  string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Serials   []string        `json:"serials,omitempty"`
}

// StockRequest asks for items to be issued from stock.
type StockRequest struct {
	ID          int64              `json:"id"`
	RequestedBy string             `json:"requested_by"`
	CreatedAt   string             `json:"created_at"`
	Lines       []StockRequestLine `json:"lines"`
}

// StockRequestLine is one requested item with its serial allocation.
type StockRequestLine struct {
	ID           int64    `json:"id"`
	RequestID    int64    `json:"request_id"`
	ItemName     string   `json:"item_name"`
	RequestedQty int      `json:"requested_qty"`
	ApprovedQty  *int     `json:"approved_qty,omitempty"`
	Serials      []string `json:"serials"`
	Balance      int      `json:"balance"`
}
