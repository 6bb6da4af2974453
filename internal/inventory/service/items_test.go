package service

import (
	"path/filepath"
	"testing"

	"github.com/microstore/microstore/internal/inventory/store"
	"github.com/microstore/microstore/internal/inventory/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *ItemService {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "inventory.db") + "?_busy_timeout=5000"
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	return &ItemService{Store: st}
}

func TestCreateItem(t *testing.T) {
	ctx := t.Context()
	svc := newTestService(t)

	t.Run("creates and reads back", func(t *testing.T) {
		created, err := svc.CreateItem(ctx, CreateItemInput{
			SKU:         "WIDGET-1",
			Name:        "Widget",
			Description: "A widget.",
			Quantity:    10,
			PriceCents:  1999,
		})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		got, err := svc.GetItem(ctx, "WIDGET-1")
		require.NoError(t, err)
		require.Equal(t, created.ID, got.ID)
		require.Equal(t, "Widget", got.Name)
		require.EqualValues(t, 10, got.Quantity)
		require.EqualValues(t, 1999, got.PriceCents)
	})

	t.Run("duplicate sku", func(t *testing.T) {
		_, err := svc.CreateItem(ctx, CreateItemInput{SKU: "WIDGET-1", Name: "Other", Quantity: 1})
		require.ErrorIs(t, err, ErrSKUExists)
	})

	t.Run("validation", func(t *testing.T) {
		cases := []struct {
			name  string
			input CreateItemInput
		}{
			{"missing sku", CreateItemInput{Name: "X"}},
			{"sku too long", CreateItemInput{SKU: "ABCDEFGHIJKLM", Name: "X"}},
			{"sku with whitespace", CreateItemInput{SKU: "A B", Name: "X"}},
			{"sku with slash", CreateItemInput{SKU: "A/B", Name: "X"}},
			{"missing name", CreateItemInput{SKU: "OK-1"}},
			{"negative quantity", CreateItemInput{SKU: "OK-1", Name: "X", Quantity: -1}},
			{"negative price", CreateItemInput{SKU: "OK-1", Name: "X", PriceCents: -5}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := svc.CreateItem(ctx, tc.input)
				require.ErrorIs(t, err, ErrInvalidItem)
			})
		}
	})
}

func TestListItems(t *testing.T) {
	ctx := t.Context()
	svc := newTestService(t)

	seed := []CreateItemInput{
		{SKU: "BOLT-10", Name: "Hex Bolt M10", Quantity: 500, PriceCents: 12},
		{SKU: "BOLT-12", Name: "Hex Bolt M12", Quantity: 200, PriceCents: 18},
		{SKU: "NUT-10", Name: "Hex Nut M10", Quantity: 800, PriceCents: 6},
	}
	for _, in := range seed {
		_, err := svc.CreateItem(ctx, in)
		require.NoError(t, err)
	}

	t.Run("unfiltered, ordered by sku", func(t *testing.T) {
		items, err := svc.ListItems(ctx, store.ItemFilter{})
		require.NoError(t, err)
		require.Len(t, items, 3)
		require.Equal(t, "BOLT-10", items[0].SKU)
		require.Equal(t, "NUT-10", items[2].SKU)
	})

	t.Run("exact sku filter", func(t *testing.T) {
		items, err := svc.ListItems(ctx, store.ItemFilter{SKU: "BOLT-12"})
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, "Hex Bolt M12", items[0].Name)
	})

	t.Run("name substring filter is case-insensitive", func(t *testing.T) {
		items, err := svc.ListItems(ctx, store.ItemFilter{Name: "bolt"})
		require.NoError(t, err)
		require.Len(t, items, 2)
	})

	t.Run("no matches", func(t *testing.T) {
		items, err := svc.ListItems(ctx, store.ItemFilter{SKU: "GONE"})
		require.NoError(t, err)
		require.Empty(t, items)
	})
}

func TestUpdateItem(t *testing.T) {
	ctx := t.Context()
	svc := newTestService(t)

	_, err := svc.CreateItem(ctx, CreateItemInput{
		SKU: "CABLE-1", Name: "USB Cable", Quantity: 40, PriceCents: 499,
	})
	require.NoError(t, err)

	t.Run("partial update leaves other fields alone", func(t *testing.T) {
		qty := int64(35)
		updated, err := svc.UpdateItem(ctx, "CABLE-1", UpdateItemInput{Quantity: &qty})
		require.NoError(t, err)
		require.EqualValues(t, 35, updated.Quantity)
		require.Equal(t, "USB Cable", updated.Name)
		require.EqualValues(t, 499, updated.PriceCents)
	})

	t.Run("blank name rejected", func(t *testing.T) {
		blank := "   "
		_, err := svc.UpdateItem(ctx, "CABLE-1", UpdateItemInput{Name: &blank})
		require.ErrorIs(t, err, ErrInvalidItem)
	})

	t.Run("negative quantity rejected", func(t *testing.T) {
		qty := int64(-1)
		_, err := svc.UpdateItem(ctx, "CABLE-1", UpdateItemInput{Quantity: &qty})
		require.ErrorIs(t, err, ErrInvalidItem)
	})

	t.Run("unknown sku", func(t *testing.T) {
		name := "New Name"
		_, err := svc.UpdateItem(ctx, "GONE", UpdateItemInput{Name: &name})
		require.ErrorIs(t, err, ErrItemNotFound)
	})
}

func TestDeleteItem(t *testing.T) {
	ctx := t.Context()
	svc := newTestService(t)

	_, err := svc.CreateItem(ctx, CreateItemInput{SKU: "TEMP-1", Name: "Temp", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteItem(ctx, "TEMP-1"))

	_, err = svc.GetItem(ctx, "TEMP-1")
	require.ErrorIs(t, err, ErrItemNotFound)

	require.ErrorIs(t, svc.DeleteItem(ctx, "TEMP-1"), ErrItemNotFound)
}
