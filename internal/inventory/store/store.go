package store

import (
	"context"
	"errors"
	"time"

	"github.com/microstore/microstore/internal/inventory/domain"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// ItemFilter narrows ListItems results. Empty fields match everything.
type ItemFilter struct {
	SKU  string // exact match
	Name string // substring match, case-insensitive
}

// ItemUpdate carries the fields of a partial update. Nil pointers leave the
// stored value untouched.
type ItemUpdate struct {
	Name        *string
	Description *string
	Quantity    *int64
	PriceCents  *int64
	UpdatedAt   time.Time
}

type Items interface {
	CreateItem(ctx context.Context, item domain.Item) error
	GetItemBySKU(ctx context.Context, sku string) (domain.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]domain.Item, error)
	UpdateItemBySKU(ctx context.Context, sku string, update ItemUpdate) (domain.Item, error)
	DeleteItemBySKU(ctx context.Context, sku string) error
}

// Store is the persistence boundary of the inventory service.
type Store interface {
	Items() Items

	ApplyMigrations() error
	Close() error
	Ping(ctx context.Context) error
}
