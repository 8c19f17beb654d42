package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
	"github.com/ariefcatur/go-marketplace-settlement/internal/settlement"
)

// Settle runs fn in one read committed transaction. Rows read through the
// Tx are locked with FOR UPDATE, so the checks fn makes hold until commit.
func (s *Store) Settle(ctx context.Context, fn func(ctx context.Context, tx settlement.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr(err, "begin settlement")
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &settleTx{tx: tx}); err != nil {
		return err
	}
	return mapErr(tx.Commit(ctx), "commit settlement")
}

type settleTx struct {
	tx pgx.Tx
}

// orderSequenceLock is the pg_advisory_xact_lock key guarding
// orders_order_id_seq between resync and the order insert.
const orderSequenceLock int64 = 0x6f726465725f6964

// ResyncOrderSequence moves the sequence past the highest stored order id.
// It never moves the sequence backwards. The advisory lock is held until the
// transaction ends, so no other settlement can call nextval between the read
// of last_value and setval.
func (t *settleTx) ResyncOrderSequence(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, orderSequenceLock); err != nil {
		return mapErr(err, "lock order sequence")
	}
	_, err := t.tx.Exec(ctx, `
		SELECT setval('orders_order_id_seq', GREATEST(
			(SELECT COALESCE(MAX(order_id), 0) + 1 FROM orders),
			(SELECT CASE WHEN is_called THEN last_value + 1 ELSE last_value END FROM orders_order_id_seq)
		), false)`)
	return mapErr(err, "resync order sequence")
}

func (t *settleTx) CartLines(ctx context.Context, buyerID int64) ([]orders.CartItem, error) {
	return queryCartItems(ctx, t.tx, buyerID, cartItemsSQL+` FOR UPDATE OF c`)
}

func (t *settleTx) LockListings(ctx context.Context, ids []int64) (map[int64]orders.Listing, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT listing_id, product_name, seller_id, unit_price, available_quantity, active
		FROM listings WHERE listing_id = ANY($1)
		ORDER BY listing_id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, mapErr(err, "lock listings")
	}
	defer rows.Close()

	out := make(map[int64]orders.Listing, len(ids))
	for rows.Next() {
		var l orders.Listing
		if err := rows.Scan(&l.ID, &l.ProductName, &l.SellerID, &l.UnitPrice, &l.Available, &l.Active); err != nil {
			return nil, mapErr(err, "scan listing")
		}
		out[l.ID] = l
	}
	return out, mapErr(rows.Err(), "iterate listings")
}

func (t *settleTx) LockAccounts(ctx context.Context, ids []int64) (map[int64]orders.Account, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT account_id, balance FROM accounts
		WHERE account_id = ANY($1)
		ORDER BY account_id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, mapErr(err, "lock accounts")
	}
	defer rows.Close()

	out := make(map[int64]orders.Account, len(ids))
	for rows.Next() {
		var a orders.Account
		if err := rows.Scan(&a.ID, &a.Balance); err != nil {
			return nil, mapErr(err, "scan account")
		}
		out[a.ID] = a
	}
	return out, mapErr(rows.Err(), "iterate accounts")
}

func (t *settleTx) WriteOrder(ctx context.Context, snap *settlement.Snapshot) (orders.Order, error) {
	o := orders.Order{TotalCost: snap.Total()}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (total_cost) VALUES ($1)
		RETURNING order_id, created_at, fulfillment_status`, o.TotalCost).
		Scan(&o.ID, &o.CreatedAt, &o.Status)
	if err != nil {
		return orders.Order{}, mapErr(err, "insert order")
	}

	for _, l := range snap.Lines() {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, listing_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)`, o.ID, l.ListingID, l.Quantity, l.UnitPrice); err != nil {
			return orders.Order{}, mapErr(err, "insert order line")
		}
	}
	return o, nil
}

func (t *settleTx) DecrementStock(ctx context.Context, listingID int64, qty int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE listings SET available_quantity = available_quantity - $2
		WHERE listing_id = $1`, listingID, qty)
	if err != nil {
		return mapErr(err, "decrement stock")
	}
	if tag.RowsAffected() == 0 {
		return orders.NotFoundError("listing", listingID)
	}
	return nil
}

func (t *settleTx) Debit(ctx context.Context, accountID int64, amount orders.Money) error {
	return adjustBalance(ctx, t.tx, accountID, -amount)
}

func (t *settleTx) Credit(ctx context.Context, accountID int64, amount orders.Money) error {
	return adjustBalance(ctx, t.tx, accountID, amount)
}

func (t *settleTx) LinkBuyer(ctx context.Context, link orders.BuyerOrderLink) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO buyer_orders (order_id, buyer_id, total_cost_at_purchase)
		VALUES ($1, $2, $3)`, link.OrderID, link.BuyerID, link.TotalCostAtPurchase)
	return mapErr(err, "link buyer")
}

func (t *settleTx) ClearCart(ctx context.Context, buyerID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_lines WHERE buyer_id = $1`, buyerID)
	return mapErr(err, "clear cart")
}
