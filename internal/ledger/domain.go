package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownProductName is shown for history entries whose product was deleted.
const UnknownProductName = "Unknown product"

// Product is a catalog item with its current on-hand stock.
type Product struct {
	ID           int64
	Name         string
	Category     string
	Price        decimal.Decimal
	Quantity     int64
	ReorderLevel int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LowStock reports whether the product is strictly below its reorder level.
func (p Product) LowStock() bool {
	return p.Quantity < p.ReorderLevel
}

// Purchase is an append-only intake entry. ProductID is a weak reference:
// the product may be deleted later while the entry remains.
type Purchase struct {
	ID          int64
	ProductID   int64
	Quantity    int64
	UnitPrice   decimal.Decimal
	PurchasedAt time.Time
}

// Sale is an append-only outflow entry, same shape as Purchase.
type Sale struct {
	ID        int64
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
	SoldAt    time.Time
}

// PurchaseEntry is a purchase joined with its product name at read time.
type PurchaseEntry struct {
	Purchase
	ProductName string
}

// SaleEntry is a sale joined with its product name at read time.
type SaleEntry struct {
	Sale
	ProductName string
}

// ProductInput carries the fields for creating a product.
type ProductInput struct {
	Name         string
	Category     string
	Price        decimal.Decimal
	Quantity     int64
	ReorderLevel int64
}

// ProductUpdate carries the fields for overwriting a product. Quantity is
// optional; when set it is a manual stock correction that bypasses the
// ledger history.
type ProductUpdate struct {
	Name         string
	Category     string
	Price        decimal.Decimal
	ReorderLevel int64
	Quantity     *int64
}

// RecordInput describes a purchase or sale to record against a product.
// IdempotencyKey is optional; when set the recording is applied at most once
// per key.
type RecordInput struct {
	ProductID      int64
	Quantity       int64
	UnitPrice      decimal.Decimal
	IdempotencyKey string
}

// Stats aggregates the ledger for the dashboard. All sums are computed
// fresh from current rows; an empty ledger yields zeroes.
type Stats struct {
	TotalProducts int64
	LowStockCount int64
	TotalRevenue  decimal.Decimal
	TotalCost     decimal.Decimal
	Profit        decimal.Decimal
}

// ErrNotFound indicates the referenced product does not exist.
var ErrNotFound = errors.New("ledger: product not found")

// ErrValidation indicates malformed or out-of-range input.
var ErrValidation = errors.New("ledger: validation failed")

// ErrInsufficientStock triggered when a sale would drive quantity negative.
var ErrInsufficientStock = errors.New("ledger: insufficient stock")
