package cart

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

// Store persists cart lines. Every method is a single statement against the
// buyer's own rows; concurrent edits of one cart are last write wins.
type Store interface {
	// UpsertCartLine inserts the line with quantity 1 at the listing's current
	// price, or adds 1 to an existing line.
	UpsertCartLine(ctx context.Context, buyerID, listingID int64) error
	DeleteCartLine(ctx context.Context, buyerID, listingID int64) error
	// DecrementCartLine lowers the quantity by 1 without going below 1 and
	// returns the resulting quantity.
	DecrementCartLine(ctx context.Context, buyerID, listingID int64) (int, error)
	DeleteCart(ctx context.Context, buyerID int64) error
	CartItems(ctx context.Context, buyerID int64) ([]orders.CartItem, error)
	// CartItemsPage orders lines by listing id ascending.
	CartItemsPage(ctx context.Context, buyerID int64, page orders.Page) ([]orders.CartItem, error)
	CountCartItems(ctx context.Context, buyerID int64) (int, error)
}

type StockReader interface {
	Available(ctx context.Context, listingID int64) (int, error)
}

type Contents struct {
	Items      []orders.CartItem `json:"items"`
	TotalPrice orders.Money      `json:"total_price"`
}

type PageContents struct {
	Contents
	TotalPages int `json:"total_pages"`
}

type Manager struct {
	Store Store
	Stock StockReader
	Log   logrus.FieldLogger
}

// AddItem adds one unit of the listing to the buyer's cart. Listings with no
// stock left cannot be added.
func (m *Manager) AddItem(ctx context.Context, buyerID, listingID int64) error {
	available, err := m.Stock.Available(ctx, listingID)
	if err != nil {
		return err
	}
	if available <= 0 {
		return orders.ErrOutOfStock
	}
	if err := m.Store.UpsertCartLine(ctx, buyerID, listingID); err != nil {
		m.logFailure(err, "add item", buyerID, listingID)
		return err
	}
	return nil
}

// RemoveItem deletes the line. Removing a listing that is not in the cart
// succeeds.
func (m *Manager) RemoveItem(ctx context.Context, buyerID, listingID int64) error {
	if err := m.Store.DeleteCartLine(ctx, buyerID, listingID); err != nil {
		m.logFailure(err, "remove item", buyerID, listingID)
		return err
	}
	return nil
}

func (m *Manager) DecreaseQuantity(ctx context.Context, buyerID, listingID int64) (int, error) {
	qty, err := m.Store.DecrementCartLine(ctx, buyerID, listingID)
	if err != nil {
		m.logFailure(err, "decrease quantity", buyerID, listingID)
		return 0, err
	}
	return qty, nil
}

func (m *Manager) Clear(ctx context.Context, buyerID int64) error {
	if err := m.Store.DeleteCart(ctx, buyerID); err != nil {
		m.logFailure(err, "clear cart", buyerID, 0)
		return err
	}
	return nil
}

func (m *Manager) Items(ctx context.Context, buyerID int64) (Contents, error) {
	items, err := m.Store.CartItems(ctx, buyerID)
	if err != nil {
		return Contents{}, err
	}
	if items == nil {
		items = []orders.CartItem{}
	}
	return Contents{Items: items, TotalPrice: orders.CartTotal(items)}, nil
}

// ItemsPage returns one page of lines. The total price still covers the
// whole cart.
func (m *Manager) ItemsPage(ctx context.Context, buyerID int64, page orders.Page) (PageContents, error) {
	if err := page.Validate(); err != nil {
		return PageContents{}, err
	}
	items, err := m.Store.CartItemsPage(ctx, buyerID, page)
	if err != nil {
		return PageContents{}, err
	}
	all, err := m.Store.CartItems(ctx, buyerID)
	if err != nil {
		return PageContents{}, err
	}
	count, err := m.Store.CountCartItems(ctx, buyerID)
	if err != nil {
		return PageContents{}, err
	}
	if items == nil {
		items = []orders.CartItem{}
	}
	return PageContents{
		Contents:   Contents{Items: items, TotalPrice: orders.CartTotal(all)},
		TotalPages: orders.TotalPages(count, page.Size),
	}, nil
}

func (m *Manager) logFailure(err error, op string, buyerID, listingID int64) {
	fields := logrus.Fields{"op": op, "buyer_id": buyerID}
	if listingID != 0 {
		fields["listing_id"] = listingID
	}
	m.Log.WithFields(fields).WithError(err).Warn("cart update failed")
}
