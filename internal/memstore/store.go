// Package memstore keeps marketplace state in process memory. It backs the
// "memory" store driver and the tests of the packages above it.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-settlement/internal/cart"
	"github.com/ariefcatur/go-marketplace-settlement/internal/ledger"
	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
	"github.com/ariefcatur/go-marketplace-settlement/internal/settlement"
)

var (
	_ cart.Store             = (*Store)(nil)
	_ ledger.Store           = (*Store)(nil)
	_ settlement.Store       = (*Store)(nil)
	_ settlement.OrderReader = (*Store)(nil)
)

type state struct {
	products map[string]orders.Product
	listings map[int64]orders.Listing
	accounts map[int64]orders.Account
	carts    map[int64]map[int64]orders.CartLine
	orders   map[int64]orders.Order
	lines    map[int64][]orders.OrderLine
	links    map[int64]orders.BuyerOrderLink // keyed by order id
	seqNext  int64
}

func newState() *state {
	return &state{
		products: map[string]orders.Product{},
		listings: map[int64]orders.Listing{},
		accounts: map[int64]orders.Account{},
		carts:    map[int64]map[int64]orders.CartLine{},
		orders:   map[int64]orders.Order{},
		lines:    map[int64][]orders.OrderLine{},
		links:    map[int64]orders.BuyerOrderLink{},
		seqNext:  1,
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for buyer, lines := range s.carts {
		m := make(map[int64]orders.CartLine, len(lines))
		for k, v := range lines {
			m[k] = v
		}
		c.carts[buyer] = m
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = append([]orders.OrderLine(nil), v...)
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	c.seqNext = s.seqNext
	return c
}

// Store is safe for concurrent use. A settlement holds the store lock for its
// whole unit of work, which gives it the same guarantees row locks give the
// postgres store.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the time source used for order timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.Name] = p
}

func (s *Store) PutListing(l orders.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.listings[l.ID] = l
}

func (s *Store) PutAccount(a orders.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.accounts[a.ID] = a
}

// SeedOrder stores an order under an explicit id without touching the id
// sequence, the way a bulk data load does.
func (s *Store) SeedOrder(o orders.Order, buyerID int64, lines []orders.OrderLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Status == "" {
		o.Status = orders.StatusPending
	}
	s.st.orders[o.ID] = o
	s.st.lines[o.ID] = append([]orders.OrderLine(nil), lines...)
	s.st.links[o.ID] = orders.BuyerOrderLink{BuyerID: buyerID, OrderID: o.ID, TotalCostAtPurchase: -o.TotalCost}
}

func (s *Store) Listing(id int64) (orders.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.listings[id]
	return l, ok
}

func (s *Store) Account(id int64) (orders.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.accounts[id]
	return a, ok
}

// Orders returns every stored order sorted by id.
func (s *Store) Orders() []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) OrderLines(orderID int64) []orders.OrderLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.OrderLine(nil), s.st.lines[orderID]...)
}

func (s *Store) BuyerLink(orderID int64) (orders.BuyerOrderLink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.links[orderID]
	return l, ok
}

// SequenceNext is the id the next order insert will receive.
func (s *Store) SequenceNext() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.seqNext
}

// Ping exists so the store can stand behind the readiness check.
func (s *Store) Ping(context.Context) error { return nil }

// ---- ledger.Store ----

func (s *Store) Available(_ context.Context, listingID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.listings[listingID]
	if !ok {
		return 0, orders.NotFoundError("listing", listingID)
	}
	return l.Available, nil
}

func (s *Store) Balance(_ context.Context, accountID int64) (orders.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.accounts[accountID]
	if !ok {
		return 0, orders.NotFoundError("account", accountID)
	}
	return a.Balance, nil
}

func (s *Store) SetAvailable(_ context.Context, listingID int64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.listings[listingID]
	if !ok {
		return orders.NotFoundError("listing", listingID)
	}
	l.Available = qty
	s.st.listings[listingID] = l
	return nil
}

func (s *Store) Deposit(_ context.Context, accountID int64, amount orders.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.accounts[accountID]
	if !ok {
		return orders.NotFoundError("account", accountID)
	}
	a.Balance += amount
	s.st.accounts[accountID] = a
	return nil
}
