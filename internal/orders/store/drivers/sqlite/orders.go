package sqlite

import (
	"context"
	"database/sql"

	"github.com/microstore/microstore/internal/orders/domain"
	"github.com/microstore/microstore/internal/orders/store"
)

type ordersRepo struct {
	db *sql.DB
}

// CreateOrder persists the order header and its lines in one transaction.
func (r *ordersRepo) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, customer_email, status, total_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.CustomerName, order.CustomerEmail, order.Status,
		order.TotalCents, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, sku, product_name, quantity, unit_price_cents, subtotal_cents)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, item.SKU, item.ProductName, item.Quantity,
			item.UnitPriceCents, item.SubtotalCents,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *ordersRepo) GetOrderByID(ctx context.Context, id string) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, customer_name, customer_email, status, total_cents, created_at, updated_at
		FROM orders WHERE id = ?`, id)

	var order domain.Order
	err := row.Scan(
		&order.ID, &order.CustomerName, &order.CustomerEmail, &order.Status,
		&order.TotalCents, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, mapNotFound(err)
	}

	items, err := r.listItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r *ordersRepo) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	query := `SELECT id, customer_name, customer_email, status, total_cents, created_at, updated_at FROM orders`
	var args []any
	if filter.CustomerEmail != "" {
		query += ` WHERE customer_email = ?`
		args = append(args, filter.CustomerEmail)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		err := rows.Scan(
			&order.ID, &order.CustomerName, &order.CustomerEmail, &order.Status,
			&order.TotalCents, &order.CreatedAt, &order.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := r.listItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *ordersRepo) listItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sku, product_name, quantity, unit_price_cents, subtotal_cents
		FROM order_items WHERE order_id = ? ORDER BY sku`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		err := rows.Scan(&item.SKU, &item.ProductName, &item.Quantity, &item.UnitPriceCents, &item.SubtotalCents)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
