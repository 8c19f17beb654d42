package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
	"github.com/ariefcatur/go-marketplace-settlement/internal/settlement"
)

// Settle runs fn against a private copy of the state and installs the copy
// only when fn succeeds.
func (s *Store) Settle(ctx context.Context, fn func(ctx context.Context, tx settlement.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) ResyncOrderSequence(context.Context) error {
	var maxID int64
	for id := range t.st.orders {
		maxID = max(maxID, id)
	}
	t.st.seqNext = orders.NextOrderID(t.st.seqNext, maxID)
	return nil
}

func (t *tx) CartLines(_ context.Context, buyerID int64) ([]orders.CartItem, error) {
	return t.st.cartItems(buyerID), nil
}

func (t *tx) LockListings(_ context.Context, ids []int64) (map[int64]orders.Listing, error) {
	out := make(map[int64]orders.Listing, len(ids))
	for _, id := range ids {
		if l, ok := t.st.listings[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

func (t *tx) LockAccounts(_ context.Context, ids []int64) (map[int64]orders.Account, error) {
	out := make(map[int64]orders.Account, len(ids))
	for _, id := range ids {
		if a, ok := t.st.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

// WriteOrder takes the next sequence value like a serial column does; a
// value that is already taken is a primary key violation.
func (t *tx) WriteOrder(_ context.Context, snap *settlement.Snapshot) (orders.Order, error) {
	id := t.st.seqNext
	t.st.seqNext++
	if _, taken := t.st.orders[id]; taken {
		return orders.Order{}, fmt.Errorf("order id %d already exists: %w", id, orders.ErrConflict)
	}

	o := orders.Order{ID: id, TotalCost: snap.Total(), CreatedAt: t.now(), Status: orders.StatusPending}
	t.st.orders[id] = o

	lines := snap.Lines()
	stored := make([]orders.OrderLine, 0, len(lines))
	for _, l := range lines {
		stored = append(stored, orders.OrderLine{
			OrderID: id, ListingID: l.ListingID, Quantity: l.Quantity, UnitPrice: l.UnitPrice,
		})
	}
	t.st.lines[id] = stored
	return o, nil
}

func (t *tx) DecrementStock(_ context.Context, listingID int64, qty int) error {
	l, ok := t.st.listings[listingID]
	if !ok {
		return orders.NotFoundError("listing", listingID)
	}
	if l.Available-qty < 0 {
		return fmt.Errorf("listing %d would go below zero: %w", listingID, orders.ErrConflict)
	}
	l.Available -= qty
	t.st.listings[listingID] = l
	return nil
}

func (t *tx) Debit(_ context.Context, accountID int64, amount orders.Money) error {
	return t.adjust(accountID, -amount)
}

func (t *tx) Credit(_ context.Context, accountID int64, amount orders.Money) error {
	return t.adjust(accountID, amount)
}

func (t *tx) adjust(accountID int64, delta orders.Money) error {
	a, ok := t.st.accounts[accountID]
	if !ok {
		return orders.NotFoundError("account", accountID)
	}
	a.Balance += delta
	t.st.accounts[accountID] = a
	return nil
}

func (t *tx) LinkBuyer(_ context.Context, link orders.BuyerOrderLink) error {
	if _, ok := t.st.orders[link.OrderID]; !ok {
		return fmt.Errorf("order %d does not exist: %w", link.OrderID, orders.ErrConflict)
	}
	if _, dup := t.st.links[link.OrderID]; dup {
		return fmt.Errorf("order %d already linked: %w", link.OrderID, orders.ErrConflict)
	}
	t.st.links[link.OrderID] = link
	return nil
}

func (t *tx) ClearCart(_ context.Context, buyerID int64) error {
	delete(t.st.carts, buyerID)
	return nil
}
