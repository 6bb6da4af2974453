package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microstore/microstore/internal/orders/domain"
	"github.com/microstore/microstore/internal/orders/inventory"
	"github.com/microstore/microstore/internal/orders/store"
	"github.com/microstore/microstore/pkg/idx"
	"github.com/microstore/microstore/pkg/slogx"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrOrderNotFound     = errors.New("order not found")
	ErrUnknownSKU        = errors.New("unknown sku")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// OrderService places and reads orders. Placing an order consults the
// inventory service for every line: the product snapshot (name, unit price)
// and the stock level both come from inventory at order time.
type OrderService struct {
	Store     store.Store
	Inventory *inventory.Client
}

// OrderLineInput is one requested line of a new order.
type OrderLineInput struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// PlaceOrderInput carries the fields a client may set when placing an order.
type PlaceOrderInput struct {
	CustomerName  string           `json:"customer_name"`
	CustomerEmail string           `json:"customer_email"`
	Items         []OrderLineInput `json:"items"`
}

// PlaceOrder validates the request, checks stock against the inventory
// service, computes all totals server-side, decrements stock, and persists
// the order as CONFIRMED.
//
// Stock is a pre-check: nothing reserves the quantity between the check and
// the decrement, so two simultaneous orders for the same SKU can both pass
// the check and oversell.
func (s *OrderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (domain.Order, error) {
	log := slogx.FromContext(ctx)

	if err := validateOrderInput(input); err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:            idx.New().String(),
		CustomerName:  strings.TrimSpace(input.CustomerName),
		CustomerEmail: strings.TrimSpace(input.CustomerEmail),
		Status:        domain.StatusConfirmed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// First pass: fetch every SKU and pre-check stock before touching
	// anything, so a failing line rejects the whole order.
	stock := make(map[string]int64, len(input.Items))
	for _, line := range input.Items {
		item, err := s.Inventory.GetItem(ctx, line.SKU)
		if err != nil {
			if errors.Is(err, inventory.ErrItemNotFound) {
				return domain.Order{}, fmt.Errorf("%w: %s", ErrUnknownSKU, line.SKU)
			}
			return domain.Order{}, fmt.Errorf("inventory lookup for %s: %w", line.SKU, err)
		}
		if item.Quantity < line.Quantity {
			return domain.Order{}, fmt.Errorf("%w: %s has %d in stock, %d requested",
				ErrInsufficientStock, line.SKU, item.Quantity, line.Quantity)
		}

		subtotal := item.PriceCents * line.Quantity
		order.Items = append(order.Items, domain.OrderItem{
			SKU:            item.SKU,
			ProductName:    item.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: item.PriceCents,
			SubtotalCents:  subtotal,
		})
		order.TotalCents += subtotal
		stock[item.SKU] = item.Quantity
	}

	// Second pass: decrement stock line by line.
	for _, line := range order.Items {
		remaining := stock[line.SKU] - line.Quantity
		if err := s.Inventory.SetQuantity(ctx, line.SKU, remaining); err != nil {
			log.Error("failed to decrement stock, order aborted",
				"sku", line.SKU, "error", err)
			return domain.Order{}, fmt.Errorf("stock update for %s: %w", line.SKU, err)
		}
	}

	if err := s.Store.Orders().CreateOrder(ctx, order); err != nil {
		return domain.Order{}, err
	}

	log.Info("order placed",
		"order_id", order.ID,
		"lines", len(order.Items),
		"total_cents", order.TotalCents,
	)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.Store.Orders().GetOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	return s.Store.Orders().ListOrders(ctx, filter)
}

func validateOrderInput(input PlaceOrderInput) error {
	if strings.TrimSpace(input.CustomerName) == "" {
		return fmt.Errorf("%w: customer_name is required", ErrInvalidOrder)
	}
	email := strings.TrimSpace(input.CustomerEmail)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: customer_email is required", ErrInvalidOrder)
	}
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}

	seen := make(map[string]struct{}, len(input.Items))
	for _, line := range input.Items {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" {
			return fmt.Errorf("%w: item sku is required", ErrInvalidOrder)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be positive", ErrInvalidOrder, sku)
		}
		if _, dup := seen[sku]; dup {
			return fmt.Errorf("%w: duplicate item %s", ErrInvalidOrder, sku)
		}
		seen[sku] = struct{}{}
	}
	return nil
}
