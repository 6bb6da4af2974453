package store

import (
	"context"
	"errors"

	"github.com/microstore/microstore/internal/orders/domain"
)

var ErrNotFound = errors.New("record not found")

// OrderFilter narrows ListOrders results. Empty fields match everything.
type OrderFilter struct {
	CustomerEmail string // exact match
}

type Orders interface {
	// CreateOrder persists an order and its lines atomically.
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrderByID(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
}

// Store is the persistence boundary of the orders service.
type Store interface {
	Orders() Orders

	ApplyMigrations() error
	Close() error
	Ping(ctx context.Context) error
}
