package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microstore/microstore/internal/inventory/domain"
	"github.com/microstore/microstore/internal/inventory/store"
	"github.com/microstore/microstore/pkg/idx"
)

var (
	ErrInvalidItem  = errors.New("invalid item")
	ErrItemNotFound = errors.New("item not found")
	ErrSKUExists    = errors.New("sku already exists")
)

// ItemService implements the inventory operations over the store.
type ItemService struct {
	Store store.Store
}

// CreateItemInput carries the fields a client may set when creating an item.
type CreateItemInput struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	PriceCents  int64  `json:"price_cents"`
}

// UpdateItemInput carries the fields of a partial update. Absent fields are
// left unchanged.
type UpdateItemInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Quantity    *int64  `json:"quantity"`
	PriceCents  *int64  `json:"price_cents"`
}

func (s *ItemService) CreateItem(ctx context.Context, input CreateItemInput) (domain.Item, error) {
	input.SKU = strings.TrimSpace(input.SKU)
	input.Name = strings.TrimSpace(input.Name)

	if err := validateSKU(input.SKU); err != nil {
		return domain.Item{}, err
	}
	if input.Name == "" {
		return domain.Item{}, fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if input.Quantity < 0 {
		return domain.Item{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidItem)
	}
	if input.PriceCents < 0 {
		return domain.Item{}, fmt.Errorf("%w: price_cents must not be negative", ErrInvalidItem)
	}

	now := time.Now().UTC()
	item := domain.Item{
		ID:          idx.New().String(),
		SKU:         input.SKU,
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
		Quantity:    input.Quantity,
		PriceCents:  input.PriceCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.Store.Items().CreateItem(ctx, item); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Item{}, ErrSKUExists
		}
		return domain.Item{}, err
	}
	return item, nil
}

func (s *ItemService) GetItem(ctx context.Context, sku string) (domain.Item, error) {
	item, err := s.Store.Items().GetItemBySKU(ctx, strings.TrimSpace(sku))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Item{}, ErrItemNotFound
		}
		return domain.Item{}, err
	}
	return item, nil
}

func (s *ItemService) ListItems(ctx context.Context, filter store.ItemFilter) ([]domain.Item, error) {
	return s.Store.Items().ListItems(ctx, filter)
}

func (s *ItemService) UpdateItem(ctx context.Context, sku string, input UpdateItemInput) (domain.Item, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return domain.Item{}, fmt.Errorf("%w: name must not be blank", ErrInvalidItem)
	}
	if input.Quantity != nil && *input.Quantity < 0 {
		return domain.Item{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidItem)
	}
	if input.PriceCents != nil && *input.PriceCents < 0 {
		return domain.Item{}, fmt.Errorf("%w: price_cents must not be negative", ErrInvalidItem)
	}

	item, err := s.Store.Items().UpdateItemBySKU(ctx, strings.TrimSpace(sku), store.ItemUpdate{
		Name:        input.Name,
		Description: input.Description,
		Quantity:    input.Quantity,
		PriceCents:  input.PriceCents,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Item{}, ErrItemNotFound
		}
		return domain.Item{}, err
	}
	return item, nil
}

func (s *ItemService) DeleteItem(ctx context.Context, sku string) error {
	err := s.Store.Items().DeleteItemBySKU(ctx, strings.TrimSpace(sku))
	if errors.Is(err, store.ErrNotFound) {
		return ErrItemNotFound
	}
	return err
}

func validateSKU(sku string) error {
	if sku == "" {
		return fmt.Errorf("%w: sku is required", ErrInvalidItem)
	}
	if len(sku) > domain.MaxSKULength {
		return fmt.Errorf("%w: sku must be at most %d characters", ErrInvalidItem, domain.MaxSKULength)
	}
	if strings.ContainsAny(sku, " \t\n/") {
		return fmt.Errorf("%w: sku must not contain whitespace or slashes", ErrInvalidItem)
	}
	return nil
}
