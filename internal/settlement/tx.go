package settlement

import (
	"context"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

// Store runs fn as one atomic unit of work. If fn returns an error nothing
// it did through tx is persisted.
//
// Implementations must make the rows returned by Tx.CartLines, Tx.LockListings
// and Tx.LockAccounts immune to concurrent modification until the unit ends
// (row locks or equivalent), otherwise two settlements can both pass the stock
// check for the same listing.
type Store interface {
	Settle(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// SequenceReconciler repairs the order id generator after rows were inserted
// with explicit ids.
type SequenceReconciler interface {
	ResyncOrderSequence(ctx context.Context) error
}

// OrderWriter persists an order and its lines from a validated snapshot. It
// performs no business checks.
type OrderWriter interface {
	WriteOrder(ctx context.Context, snap *Snapshot) (orders.Order, error)
}

// Tx is the set of operations available inside a settlement. Stock and
// balance mutations exist only here.
type Tx interface {
	SequenceReconciler
	OrderWriter

	// CartLines returns the buyer's cart, locked for the rest of the unit.
	CartLines(ctx context.Context, buyerID int64) ([]orders.CartItem, error)
	// LockListings returns the listings that exist among ids. Missing ids are
	// absent from the map.
	LockListings(ctx context.Context, ids []int64) (map[int64]orders.Listing, error)
	// LockAccounts returns the accounts that exist among ids.
	LockAccounts(ctx context.Context, ids []int64) (map[int64]orders.Account, error)

	DecrementStock(ctx context.Context, listingID int64, qty int) error
	Debit(ctx context.Context, accountID int64, amount orders.Money) error
	Credit(ctx context.Context, accountID int64, amount orders.Money) error
	LinkBuyer(ctx context.Context, link orders.BuyerOrderLink) error
	ClearCart(ctx context.Context, buyerID int64) error
}
