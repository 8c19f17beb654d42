package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-marketplace-settlement/internal/memstore"
	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
	"github.com/ariefcatur/go-marketplace-settlement/internal/settlement"
)

func seedHistory(store *memstore.Store) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 7; i++ {
		lines := make([]orders.OrderLine, 0, i%3+1)
		for n := int64(0); n <= i%3; n++ {
			lines = append(lines, orders.OrderLine{OrderID: i, ListingID: 100 + n, Quantity: 1, UnitPrice: 10})
		}
		store.SeedOrder(orders.Order{ID: i, TotalCost: orders.Money(i * 10), CreatedAt: base.Add(time.Duration(i) * time.Hour)}, buyerID, lines)
	}
	store.SeedOrder(orders.Order{ID: 50, TotalCost: 1, CreatedAt: base}, 2, nil)
}

func TestHistory_Purchases(t *testing.T) {
	store := memstore.New()
	seedHistory(store)
	h := &settlement.History{Reader: store}
	ctx := context.Background()

	t.Run("newest first with page math", func(t *testing.T) {
		p, err := h.Purchases(ctx, buyerID, orders.Page{Number: 1, Size: 5}, "")
		require.NoError(t, err)
		assert.Equal(t, 7, p.TotalOrders)
		assert.Equal(t, 2, p.TotalPages)
		require.Len(t, p.Purchases, 5)
		assert.Equal(t, int64(7), p.Purchases[0].OrderID)
		assert.Equal(t, int64(3), p.Purchases[4].OrderID)
	})

	t.Run("last page", func(t *testing.T) {
		p, err := h.Purchases(ctx, buyerID, orders.Page{Number: 2, Size: 5}, orders.SortByDate)
		require.NoError(t, err)
		require.Len(t, p.Purchases, 2)
		assert.Equal(t, int64(1), p.Purchases[1].OrderID)
	})

	t.Run("past the end is empty", func(t *testing.T) {
		p, err := h.Purchases(ctx, buyerID, orders.Page{Number: 9, Size: 5}, "")
		require.NoError(t, err)
		assert.NotNil(t, p.Purchases)
		assert.Empty(t, p.Purchases)
	})

	t.Run("by item count", func(t *testing.T) {
		p, err := h.Purchases(ctx, buyerID, orders.Page{Number: 1, Size: 2}, orders.SortByItemCount)
		require.NoError(t, err)
		require.Len(t, p.Purchases, 2)
		assert.Equal(t, int64(5), p.Purchases[0].OrderID)
		assert.Equal(t, int64(2), p.Purchases[1].OrderID)
		assert.Equal(t, 3, p.Purchases[1].ItemCount)
	})

	t.Run("unknown sort falls back to date", func(t *testing.T) {
		p, err := h.Purchases(ctx, buyerID, orders.Page{Number: 1, Size: 1}, "price; DROP TABLE orders")
		require.NoError(t, err)
		assert.Equal(t, int64(7), p.Purchases[0].OrderID)
	})

	t.Run("invalid page", func(t *testing.T) {
		_, err := h.Purchases(ctx, buyerID, orders.Page{Number: 0, Size: 5}, "")
		assert.ErrorIs(t, err, orders.ErrInvalidPage)
	})
}

func TestHistory_Order(t *testing.T) {
	store := memstore.New()
	seedHistory(store)
	h := &settlement.History{Reader: store}

	d, err := h.Order(context.Background(), buyerID, 5)
	require.NoError(t, err)
	assert.Equal(t, orders.Money(50), d.TotalCost)
	assert.Len(t, d.Lines, 3)

	_, err = h.Order(context.Background(), buyerID, 50)
	assert.ErrorIs(t, err, orders.ErrNotFound)

	_, err = h.Order(context.Background(), buyerID, 404)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}
