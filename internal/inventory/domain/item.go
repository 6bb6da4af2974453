package domain

import "time"

// MaxSKULength bounds the stock keeping unit identifier.
const MaxSKULength = 12

// Item is a stocked product. Prices are integer cents to avoid floating
// point rounding in totals.
type Item struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Quantity    int64     `json:"quantity"`
	PriceCents  int64     `json:"price_cents"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
