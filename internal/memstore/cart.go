package memstore

import (
	"context"
	"sort"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

func (s *Store) UpsertCartLine(_ context.Context, buyerID, listingID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.listings[listingID]
	if !ok {
		return orders.NotFoundError("listing", listingID)
	}
	cart := s.st.carts[buyerID]
	if cart == nil {
		cart = map[int64]orders.CartLine{}
		s.st.carts[buyerID] = cart
	}
	line, ok := cart[listingID]
	if !ok {
		cart[listingID] = orders.CartLine{BuyerID: buyerID, ListingID: listingID, Quantity: 1, UnitPrice: l.UnitPrice}
		return nil
	}
	line.Quantity = max(1, line.Quantity+1)
	cart[listingID] = line
	return nil
}

func (s *Store) DeleteCartLine(_ context.Context, buyerID, listingID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.carts[buyerID], listingID)
	return nil
}

func (s *Store) DecrementCartLine(_ context.Context, buyerID, listingID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.st.carts[buyerID][listingID]
	if !ok {
		return 0, orders.NotFoundError("cart line", listingID)
	}
	if line.Quantity > 1 {
		line.Quantity--
		s.st.carts[buyerID][listingID] = line
	}
	return line.Quantity, nil
}

func (s *Store) DeleteCart(_ context.Context, buyerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.carts, buyerID)
	return nil
}

func (s *Store) CartItems(_ context.Context, buyerID int64) ([]orders.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.cartItems(buyerID), nil
}

func (s *Store) CartItemsPage(_ context.Context, buyerID int64, page orders.Page) ([]orders.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.st.cartItems(buyerID)
	start := page.Offset()
	if start >= len(items) {
		return []orders.CartItem{}, nil
	}
	end := min(start+page.Size, len(items))
	return items[start:end], nil
}

func (s *Store) CountCartItems(_ context.Context, buyerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.carts[buyerID]), nil
}

// cartItems joins the buyer's lines with listing and catalog data, ordered by
// listing id.
func (st *state) cartItems(buyerID int64) []orders.CartItem {
	cart := st.carts[buyerID]
	items := make([]orders.CartItem, 0, len(cart))
	for _, line := range cart {
		it := orders.CartItem{CartLine: line}
		if l, ok := st.listings[line.ListingID]; ok {
			it.ProductName = l.ProductName
			it.SellerID = l.SellerID
			p := st.products[l.ProductName]
			it.Description = p.Description
			it.ImageURL = p.ImageURL
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ListingID < items[j].ListingID })
	return items
}
