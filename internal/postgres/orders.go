package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

// sortColumns maps the accepted sort keys to SQL. Nothing else reaches the
// ORDER BY clause.
var sortColumns = map[string]string{
	orders.SortByDate:        "o.created_at",
	orders.SortByTotal:       "o.total_cost",
	orders.SortByItemCount:   "item_count",
	orders.SortByFulfillment: "o.fulfillment_status",
}

func (s *Store) OrderDetail(ctx context.Context, orderID int64) (orders.OrderDetail, error) {
	var d orders.OrderDetail
	err := s.pool.QueryRow(ctx, `
		SELECT o.order_id, o.total_cost, o.created_at, o.fulfillment_status, COALESCE(b.buyer_id, 0)
		FROM orders o LEFT JOIN buyer_orders b ON b.order_id = o.order_id
		WHERE o.order_id = $1`, orderID).
		Scan(&d.ID, &d.TotalCost, &d.CreatedAt, &d.Status, &d.BuyerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.OrderDetail{}, orders.NotFoundError("order", orderID)
	}
	if err != nil {
		return orders.OrderDetail{}, mapErr(err, "read order")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT listing_id, quantity, unit_price, fulfillment_time
		FROM order_lines WHERE order_id = $1
		ORDER BY listing_id`, orderID)
	if err != nil {
		return orders.OrderDetail{}, mapErr(err, "read order lines")
	}
	defer rows.Close()

	d.Lines = []orders.OrderLine{}
	for rows.Next() {
		l := orders.OrderLine{OrderID: orderID}
		if err := rows.Scan(&l.ListingID, &l.Quantity, &l.UnitPrice, &l.FulfilledAt); err != nil {
			return orders.OrderDetail{}, mapErr(err, "scan order line")
		}
		d.Lines = append(d.Lines, l)
	}
	return d, mapErr(rows.Err(), "iterate order lines")
}

func (s *Store) PurchaseHistory(ctx context.Context, buyerID int64, page orders.Page, sortBy string) ([]orders.OrderSummary, error) {
	col, ok := sortColumns[sortBy]
	if !ok {
		col = sortColumns[orders.SortByDate]
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT o.order_id, o.created_at, o.total_cost, COUNT(ol.listing_id) AS item_count, o.fulfillment_status
		FROM buyer_orders b
		JOIN orders o ON o.order_id = b.order_id
		LEFT JOIN order_lines ol ON ol.order_id = o.order_id
		WHERE b.buyer_id = $1
		GROUP BY o.order_id
		ORDER BY %s DESC, o.order_id DESC
		LIMIT $2 OFFSET $3`, col), buyerID, page.Size, page.Offset())
	if err != nil {
		return nil, mapErr(err, "query purchase history")
	}
	defer rows.Close()

	out := []orders.OrderSummary{}
	for rows.Next() {
		var r orders.OrderSummary
		if err := rows.Scan(&r.OrderID, &r.PurchasedAt, &r.TotalCost, &r.ItemCount, &r.Status); err != nil {
			return nil, mapErr(err, "scan purchase")
		}
		out = append(out, r)
	}
	return out, mapErr(rows.Err(), "iterate purchases")
}

func (s *Store) CountPurchases(ctx context.Context, buyerID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM buyer_orders WHERE buyer_id = $1`, buyerID).Scan(&n)
	return n, mapErr(err, "count purchases")
}

// FulfillLine stamps one order line and flips the order to fulfilled when
// it was the last open line. It reports whether this call completed the
// order.
func (s *Store) FulfillLine(ctx context.Context, orderID, listingID int64, at time.Time) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, mapErr(err, "begin fulfillment")
	}
	defer tx.Rollback(ctx)

	var status orders.FulfillmentStatus
	err = tx.QueryRow(ctx, `SELECT fulfillment_status FROM orders WHERE order_id = $1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, orders.NotFoundError("order", orderID)
	}
	if err != nil {
		return false, mapErr(err, "lock order")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE order_lines SET fulfillment_time = COALESCE(fulfillment_time, $3)
		WHERE order_id = $1 AND listing_id = $2`, orderID, listingID, at)
	if err != nil {
		return false, mapErr(err, "stamp order line")
	}
	if tag.RowsAffected() == 0 {
		return false, orders.NotFoundError("order line", listingID)
	}

	var open int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM order_lines
		WHERE order_id = $1 AND fulfillment_time IS NULL`, orderID).Scan(&open); err != nil {
		return false, mapErr(err, "count open lines")
	}

	completed := open == 0 && orders.CanTransition(status, orders.StatusFulfilled)
	if completed {
		if _, err := tx.Exec(ctx, `UPDATE orders SET fulfillment_status = $2 WHERE order_id = $1`,
			orderID, orders.StatusFulfilled); err != nil {
			return false, mapErr(err, "complete order")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, mapErr(err, "commit fulfillment")
	}
	return completed, nil
}
