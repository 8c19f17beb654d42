package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

// SellerCredit is one credit applied to a seller, traceable to the order line
// that produced it.
type SellerCredit struct {
	SellerID  int64        `json:"seller_id"`
	ListingID int64        `json:"product_id"`
	Amount    orders.Money `json:"amount"`
}

type Receipt struct {
	OrderID   int64              `json:"order_id"`
	BuyerID   int64              `json:"buyer_id"`
	CreatedAt time.Time          `json:"created_at"`
	TotalCost orders.Money       `json:"total_cost"`
	Lines     []orders.OrderLine `json:"items"`
	Credits   []SellerCredit     `json:"credits"`
}

// Engine converts a buyer's cart into an order.
type Engine struct {
	Store Store
	Log   logrus.FieldLogger
}

// PlaceOrder settles the buyer's cart in one unit of work:
// resync the order sequence, snapshot and lock the cart, lock listings and
// accounts, check stock for every line, check funds, write the order, move
// stock and money, link the buyer, clear the cart. Any failure leaves all
// state as it was.
func (e *Engine) PlaceOrder(ctx context.Context, buyerID int64) (Receipt, error) {
	var rc Receipt
	err := e.Store.Settle(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.ResyncOrderSequence(ctx); err != nil {
			return fmt.Errorf("resync order sequence: %w", err)
		}

		items, err := tx.CartLines(ctx, buyerID)
		if err != nil {
			return fmt.Errorf("read cart: %w", err)
		}
		if len(items) == 0 {
			return orders.ErrEmptyCart
		}

		listings, err := tx.LockListings(ctx, listingIDs(items))
		if err != nil {
			return fmt.Errorf("lock listings: %w", err)
		}
		accounts, err := tx.LockAccounts(ctx, accountIDs(buyerID, listings))
		if err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}

		snap, err := validate(buyerID, items, listings, accounts)
		if err != nil {
			return err
		}

		order, err := tx.WriteOrder(ctx, snap)
		if err != nil {
			return fmt.Errorf("write order: %w", err)
		}

		for _, l := range snap.lines {
			if err := tx.DecrementStock(ctx, l.ListingID, l.Quantity); err != nil {
				return fmt.Errorf("decrement stock of listing %d: %w", l.ListingID, err)
			}
		}

		if err := tx.Debit(ctx, buyerID, snap.total); err != nil {
			return fmt.Errorf("debit buyer %d: %w", buyerID, err)
		}

		credits := make([]SellerCredit, 0, len(snap.lines))
		for _, l := range snap.lines {
			c := SellerCredit{SellerID: l.SellerID, ListingID: l.ListingID, Amount: l.Subtotal()}
			if err := tx.Credit(ctx, c.SellerID, c.Amount); err != nil {
				return fmt.Errorf("credit seller %d for listing %d: %w", c.SellerID, c.ListingID, err)
			}
			credits = append(credits, c)
		}

		link := orders.BuyerOrderLink{BuyerID: buyerID, OrderID: order.ID, TotalCostAtPurchase: -snap.total}
		if err := tx.LinkBuyer(ctx, link); err != nil {
			return fmt.Errorf("link buyer: %w", err)
		}

		if err := tx.ClearCart(ctx, buyerID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		rc = Receipt{
			OrderID:   order.ID,
			BuyerID:   buyerID,
			CreatedAt: order.CreatedAt,
			TotalCost: order.TotalCost,
			Lines:     orderLines(order.ID, snap.lines),
			Credits:   credits,
		}
		return nil
	})

	log := e.Log.WithField("buyer_id", buyerID)
	if err != nil {
		if orders.IsUserFacing(err) {
			log.WithError(err).Info("order rejected")
		} else {
			log.WithError(err).Error("order placement failed")
		}
		return Receipt{}, err
	}

	log.WithFields(logrus.Fields{
		"order_id":   rc.OrderID,
		"total_cost": rc.TotalCost,
		"lines":      len(rc.Lines),
	}).Info("order placed")
	return rc, nil
}

func orderLines(orderID int64, lines []PricedLine) []orders.OrderLine {
	out := make([]orders.OrderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, orders.OrderLine{
			OrderID:   orderID,
			ListingID: l.ListingID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return out
}

// Event builds the OrderPlaced payload for the receipt.
func (rc Receipt) Event() orders.OrderPlacedPayload {
	p := orders.OrderPlacedPayload{
		OrderID:   rc.OrderID,
		BuyerID:   rc.BuyerID,
		TotalCost: rc.TotalCost,
		CreatedAt: rc.CreatedAt,
		Lines:     make([]orders.PlacedLine, 0, len(rc.Lines)),
	}
	for i, l := range rc.Lines {
		pl := orders.PlacedLine{ListingID: l.ListingID, Qty: l.Quantity, UnitPrice: l.UnitPrice}
		if i < len(rc.Credits) {
			pl.SellerID = rc.Credits[i].SellerID
		}
		p.Lines = append(p.Lines, pl)
	}
	return p
}
