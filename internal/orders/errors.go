package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("persistence conflict")
	ErrUnauthorized      = errors.New("unauthorized")

	ErrEmptyCart     = errors.New("cart is empty")
	ErrOutOfStock    = errors.New("out of stock")
	ErrInvalidPage   = errors.New("page and page size must be positive")
	ErrInvalidAmount = errors.New("invalid amount")
)

// StockError reports the first cart line whose quantity exceeds what the
// listing has available.
type StockError struct {
	ListingID int64
	Product   string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.Product)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// NotFoundError names the missing entity.
func NotFoundError(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

// IsUserFacing reports whether err carries a reason that can be shown to the
// caller as is.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrOutOfStock)
}
