package ledger

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

// Store reads stock and balances and applies the two adjustments that come
// from outside settlement: a seller restocking and an account top-up.
// Decrement, debit and credit are not here; see settlement.Tx.
type Store interface {
	Available(ctx context.Context, listingID int64) (int, error)
	Balance(ctx context.Context, accountID int64) (orders.Money, error)
	SetAvailable(ctx context.Context, listingID int64, qty int) error
	Deposit(ctx context.Context, accountID int64, amount orders.Money) error
}

type Ledger struct {
	Store Store
	Log   logrus.FieldLogger
}

// Stock returns the available quantity of a listing.
func (l *Ledger) Stock(ctx context.Context, listingID int64) (int, error) {
	return l.Store.Available(ctx, listingID)
}

func (l *Ledger) Balance(ctx context.Context, accountID int64) (orders.Money, error) {
	return l.Store.Balance(ctx, accountID)
}

// Restock sets the available quantity of a listing.
func (l *Ledger) Restock(ctx context.Context, listingID int64, qty int) error {
	if qty < 0 {
		return orders.ErrInvalidAmount
	}
	if err := l.Store.SetAvailable(ctx, listingID, qty); err != nil {
		return err
	}
	l.Log.WithFields(logrus.Fields{"listing_id": listingID, "available": qty}).Info("listing restocked")
	return nil
}

func (l *Ledger) TopUp(ctx context.Context, accountID int64, amount orders.Money) error {
	if amount <= 0 {
		return orders.ErrInvalidAmount
	}
	if err := l.Store.Deposit(ctx, accountID, amount); err != nil {
		return err
	}
	l.Log.WithFields(logrus.Fields{"account_id": accountID, "amount": amount}).Info("account topped up")
	return nil
}
