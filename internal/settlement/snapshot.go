package settlement

import (
	"sort"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

// PricedLine is one cart line frozen at settlement time.
type PricedLine struct {
	ListingID   int64
	SellerID    int64
	ProductName string
	Quantity    int
	UnitPrice   orders.Money
}

func (l PricedLine) Subtotal() orders.Money { return orders.Money(l.Quantity) * l.UnitPrice }

// Snapshot is a cart that passed the stock and funds checks. Only this
// package can build one, so an OrderWriter never sees unchecked input.
type Snapshot struct {
	buyerID int64
	lines   []PricedLine
	total   orders.Money
}

func (s *Snapshot) BuyerID() int64      { return s.buyerID }
func (s *Snapshot) Total() orders.Money { return s.total }

// Lines returns a copy of the frozen lines, ordered by listing id.
func (s *Snapshot) Lines() []PricedLine {
	out := make([]PricedLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// validate is the single pass over the cart that happens before any write.
// Stock is checked for every line first, then the buyer's funds.
func validate(buyerID int64, items []orders.CartItem, listings map[int64]orders.Listing, accounts map[int64]orders.Account) (*Snapshot, error) {
	snap := &Snapshot{buyerID: buyerID, lines: make([]PricedLine, 0, len(items))}

	for _, it := range items {
		l, ok := listings[it.ListingID]
		if !ok {
			return nil, orders.NotFoundError("listing", it.ListingID)
		}
		available := l.Available
		if !l.Active {
			available = 0
		}
		name := l.ProductName
		if name == "" {
			name = it.ProductName
		}
		if available < it.Quantity {
			return nil, &orders.StockError{
				ListingID: it.ListingID, Product: name, Requested: it.Quantity, Available: available,
			}
		}
		pl := PricedLine{
			ListingID:   it.ListingID,
			SellerID:    l.SellerID,
			ProductName: name,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
		snap.lines = append(snap.lines, pl)
		snap.total += pl.Subtotal()
	}

	buyer, ok := accounts[buyerID]
	if !ok {
		return nil, orders.NotFoundError("account", buyerID)
	}
	if buyer.Balance < snap.total {
		return nil, orders.ErrInsufficientFunds
	}
	for _, pl := range snap.lines {
		if _, ok := accounts[pl.SellerID]; !ok {
			return nil, orders.NotFoundError("seller account", pl.SellerID)
		}
	}

	sort.Slice(snap.lines, func(i, j int) bool { return snap.lines[i].ListingID < snap.lines[j].ListingID })
	return snap, nil
}

func listingIDs(items []orders.CartItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ListingID)
	}
	return sortedUnique(ids)
}

func accountIDs(buyerID int64, listings map[int64]orders.Listing) []int64 {
	ids := []int64{buyerID}
	for _, l := range listings {
		ids = append(ids, l.SellerID)
	}
	return sortedUnique(ids)
}

// sortedUnique fixes the lock order so concurrent settlements never wait on
// each other in a cycle.
func sortedUnique(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	for _, id := range ids {
		if len(out) == 0 || id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
