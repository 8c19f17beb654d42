package settlement

import (
	"context"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

// OrderReader reads the persisted order trail.
type OrderReader interface {
	OrderDetail(ctx context.Context, orderID int64) (orders.OrderDetail, error)
	PurchaseHistory(ctx context.Context, buyerID int64, page orders.Page, sortBy string) ([]orders.OrderSummary, error)
	CountPurchases(ctx context.Context, buyerID int64) (int, error)
}

type PurchasePage struct {
	Purchases   []orders.OrderSummary `json:"purchases"`
	TotalPages  int                   `json:"total_pages"`
	TotalOrders int                   `json:"total_orders"`
}

type History struct {
	Reader OrderReader
}

// Order returns one order with its lines. Orders of other buyers are
// reported as not found.
func (h *History) Order(ctx context.Context, buyerID, orderID int64) (orders.OrderDetail, error) {
	d, err := h.Reader.OrderDetail(ctx, orderID)
	if err != nil {
		return orders.OrderDetail{}, err
	}
	if d.BuyerID != buyerID {
		return orders.OrderDetail{}, orders.NotFoundError("order", orderID)
	}
	return d, nil
}

// Purchases pages through the buyer's orders, newest or largest first
// depending on sortBy.
func (h *History) Purchases(ctx context.Context, buyerID int64, page orders.Page, sortBy string) (PurchasePage, error) {
	if err := page.Validate(); err != nil {
		return PurchasePage{}, err
	}
	rows, err := h.Reader.PurchaseHistory(ctx, buyerID, page, orders.NormalizeSort(sortBy))
	if err != nil {
		return PurchasePage{}, err
	}
	total, err := h.Reader.CountPurchases(ctx, buyerID)
	if err != nil {
		return PurchasePage{}, err
	}
	if rows == nil {
		rows = []orders.OrderSummary{}
	}
	return PurchasePage{
		Purchases:   rows,
		TotalPages:  orders.TotalPages(total, page.Size),
		TotalOrders: total,
	}, nil
}
