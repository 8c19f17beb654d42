package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

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

// querier is satisfied by the pool and by a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

const cartItemsSQL = `
SELECT c.listing_id, c.quantity, c.at_price,
       COALESCE(l.product_name, ''), COALESCE(p.description, ''),
       COALESCE(p.image_url, ''), COALESCE(l.seller_id, 0)
FROM cart_lines c
LEFT JOIN listings l ON l.listing_id = c.listing_id
LEFT JOIN product_catalog p ON p.product_name = l.product_name
WHERE c.buyer_id = $1
ORDER BY c.listing_id`

func queryCartItems(ctx context.Context, q querier, buyerID int64, sql string, args ...any) ([]orders.CartItem, error) {
	rows, err := q.Query(ctx, sql, append([]any{buyerID}, args...)...)
	if err != nil {
		return nil, mapErr(err, "query cart")
	}
	defer rows.Close()

	items := []orders.CartItem{}
	for rows.Next() {
		it := orders.CartItem{CartLine: orders.CartLine{BuyerID: buyerID}}
		if err := rows.Scan(&it.ListingID, &it.Quantity, &it.UnitPrice,
			&it.ProductName, &it.Description, &it.ImageURL, &it.SellerID); err != nil {
			return nil, mapErr(err, "scan cart line")
		}
		items = append(items, it)
	}
	return items, mapErr(rows.Err(), "iterate cart")
}

func (s *Store) UpsertCartLine(ctx context.Context, buyerID, listingID int64) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO cart_lines (buyer_id, listing_id, quantity, at_price)
		SELECT $1, listing_id, 1, unit_price FROM listings WHERE listing_id = $2
		ON CONFLICT (buyer_id, listing_id)
		DO UPDATE SET quantity = GREATEST(1, cart_lines.quantity + 1)`, buyerID, listingID)
	if err != nil {
		return mapErr(err, "upsert cart line")
	}
	if tag.RowsAffected() == 0 {
		return orders.NotFoundError("listing", listingID)
	}
	return nil
}

func (s *Store) DeleteCartLine(ctx context.Context, buyerID, listingID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cart_lines WHERE buyer_id = $1 AND listing_id = $2`, buyerID, listingID)
	return mapErr(err, "delete cart line")
}

func (s *Store) DecrementCartLine(ctx context.Context, buyerID, listingID int64) (int, error) {
	var qty int
	err := s.pool.QueryRow(ctx, `
		UPDATE cart_lines
		SET quantity = CASE WHEN quantity > 1 THEN quantity - 1 ELSE quantity END
		WHERE buyer_id = $1 AND listing_id = $2
		RETURNING quantity`, buyerID, listingID).Scan(&qty)
	if err != nil {
		return 0, mapErr(err, "decrement cart line")
	}
	return qty, nil
}

func (s *Store) DeleteCart(ctx context.Context, buyerID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cart_lines WHERE buyer_id = $1`, buyerID)
	return mapErr(err, "delete cart")
}

func (s *Store) CartItems(ctx context.Context, buyerID int64) ([]orders.CartItem, error) {
	return queryCartItems(ctx, s.pool, buyerID, cartItemsSQL)
}

func (s *Store) CartItemsPage(ctx context.Context, buyerID int64, page orders.Page) ([]orders.CartItem, error) {
	return queryCartItems(ctx, s.pool, buyerID, cartItemsSQL+` LIMIT $2 OFFSET $3`, page.Size, page.Offset())
}

func (s *Store) CountCartItems(ctx context.Context, buyerID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cart_lines WHERE buyer_id = $1`, buyerID).Scan(&n)
	return n, mapErr(err, "count cart lines")
}

func (s *Store) Available(ctx context.Context, listingID int64) (int, error) {
	var qty int
	err := s.pool.QueryRow(ctx, `SELECT available_quantity FROM listings WHERE listing_id = $1`, listingID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, orders.NotFoundError("listing", listingID)
	}
	return qty, mapErr(err, "read stock")
}

func (s *Store) Balance(ctx context.Context, accountID int64) (orders.Money, error) {
	var bal orders.Money
	err := s.pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE account_id = $1`, accountID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, orders.NotFoundError("account", accountID)
	}
	return bal, mapErr(err, "read balance")
}

func (s *Store) SetAvailable(ctx context.Context, listingID int64, qty int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE listings SET available_quantity = $2 WHERE listing_id = $1`, listingID, qty)
	if err != nil {
		return mapErr(err, "set stock")
	}
	if tag.RowsAffected() == 0 {
		return orders.NotFoundError("listing", listingID)
	}
	return nil
}

func (s *Store) Deposit(ctx context.Context, accountID int64, amount orders.Money) error {
	return adjustBalance(ctx, s.pool, accountID, amount)
}

func adjustBalance(ctx context.Context, q querier, accountID int64, delta orders.Money) error {
	tag, err := q.Exec(ctx, `UPDATE accounts SET balance = balance + $2 WHERE account_id = $1`, accountID, delta)
	if err != nil {
		return mapErr(err, "adjust balance")
	}
	if tag.RowsAffected() == 0 {
		return orders.NotFoundError("account", accountID)
	}
	return nil
}
