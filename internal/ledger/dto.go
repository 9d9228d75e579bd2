package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type productForm struct {
	Name         string          `json:"name" validate:"required"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity" validate:"gte=0"`
	ReorderLevel int64           `json:"reorder_level" validate:"gte=0"`
}

type productUpdateForm struct {
	Name         string          `json:"name" validate:"required"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	ReorderLevel int64           `json:"reorder_level" validate:"gte=0"`
	Quantity     *int64          `json:"quantity,omitempty"`
}

type recordForm struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type adjustForm struct {
	Delta int64 `json:"delta"`
}

type productResponse struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"`
	ReorderLevel int64           `json:"reorder_level"`
	LowStock     bool            `json:"low_stock"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type purchaseResponse struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	PurchasedAt time.Time       `json:"purchased_at"`
}

type saleResponse struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SoldAt      time.Time       `json:"sold_at"`
}

type statsResponse struct {
	TotalProducts int64           `json:"total_products"`
	LowStockCount int64           `json:"low_stock_count"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Profit        decimal.Decimal `json:"profit"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:           p.ID,
		Name:         p.Name,
		Category:     p.Category,
		Price:        p.Price,
		Quantity:     p.Quantity,
		ReorderLevel: p.ReorderLevel,
		LowStock:     p.LowStock(),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toProductResponses(products []Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

func toStatsResponse(s Stats) statsResponse {
	return statsResponse{
		TotalProducts: s.TotalProducts,
		LowStockCount: s.LowStockCount,
		TotalRevenue:  s.TotalRevenue,
		TotalCost:     s.TotalCost,
		Profit:        s.Profit,
	}
}
