package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/microstore/microstore/internal/inventory/domain"
	"github.com/microstore/microstore/internal/inventory/store"
)

const itemColumns = `id, sku, name, description, quantity, price_cents, created_at, updated_at`

type itemsRepo struct {
	db *sql.DB
}

func (r *itemsRepo) CreateItem(ctx context.Context, item domain.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.SKU, item.Name, item.Description,
		item.Quantity, item.PriceCents, item.CreatedAt, item.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *itemsRepo) GetItemBySKU(ctx context.Context, sku string) (domain.Item, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE sku = ?`, sku)

	var item domain.Item
	err := row.Scan(
		&item.ID, &item.SKU, &item.Name, &item.Description,
		&item.Quantity, &item.PriceCents, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return domain.Item{}, mapNotFound(err)
	}
	return item, nil
}

func (r *itemsRepo) ListItems(ctx context.Context, filter store.ItemFilter) ([]domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	var (
		predicates []string
		args       []any
	)
	if filter.SKU != "" {
		predicates = append(predicates, "sku = ?")
		args = append(args, filter.SKU)
	}
	if filter.Name != "" {
		predicates = append(predicates, "name LIKE ? COLLATE NOCASE")
		args = append(args, "%"+filter.Name+"%")
	}
	if len(predicates) > 0 {
		query += " WHERE " + strings.Join(predicates, " AND ")
	}
	query += " ORDER BY sku"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		err := rows.Scan(
			&item.ID, &item.SKU, &item.Name, &item.Description,
			&item.Quantity, &item.PriceCents, &item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *itemsRepo) UpdateItemBySKU(ctx context.Context, sku string, update store.ItemUpdate) (domain.Item, error) {
	var (
		sets []string
		args []any
	)
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Quantity != nil {
		sets = append(sets, "quantity = ?")
		args = append(args, *update.Quantity)
	}
	if update.PriceCents != nil {
		sets = append(sets, "price_cents = ?")
		args = append(args, *update.PriceCents)
	}

	if len(sets) > 0 {
		updatedAt := update.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		sets = append(sets, "updated_at = ?")
		args = append(args, updatedAt)
		args = append(args, sku)

		res, err := r.db.ExecContext(ctx,
			`UPDATE items SET `+strings.Join(sets, ", ")+` WHERE sku = ?`, args...)
		if err != nil {
			return domain.Item{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return domain.Item{}, err
		}
		if n == 0 {
			return domain.Item{}, store.ErrNotFound
		}
	}

	return r.GetItemBySKU(ctx, sku)
}

func (r *itemsRepo) DeleteItemBySKU(ctx context.Context, sku string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE sku = ?`, sku)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
