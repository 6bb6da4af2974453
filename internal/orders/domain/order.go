package domain

import "time"

// Order statuses.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
)

// Order is a customer purchase. Monetary values are integer cents; the
// total and per-line subtotals are always computed server-side from the
// inventory prices at order time.
type Order struct {
	ID            string      `json:"id"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	Status        string      `json:"status"`
	TotalCents    int64       `json:"total_cents"`
	Items         []OrderItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// OrderItem is one line of an order. ProductName and UnitPriceCents are
// snapshots of the inventory item at order time.
type OrderItem struct {
	SKU            string `json:"sku"`
	ProductName    string `json:"product_name"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}
