package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

func (s *Store) OrderDetail(_ context.Context, orderID int64) (orders.OrderDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[orderID]
	if !ok {
		return orders.OrderDetail{}, orders.NotFoundError("order", orderID)
	}
	return orders.OrderDetail{
		Order:   o,
		BuyerID: s.st.links[orderID].BuyerID,
		Lines:   append([]orders.OrderLine(nil), s.st.lines[orderID]...),
	}, nil
}

func (s *Store) PurchaseHistory(_ context.Context, buyerID int64, page orders.Page, sortBy string) ([]orders.OrderSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []orders.OrderSummary
	for id, link := range s.st.links {
		if link.BuyerID != buyerID {
			continue
		}
		o := s.st.orders[id]
		rows = append(rows, orders.OrderSummary{
			OrderID:     o.ID,
			PurchasedAt: o.CreatedAt,
			TotalCost:   o.TotalCost,
			ItemCount:   len(s.st.lines[id]),
			Status:      o.Status,
		})
	}

	less := func(a, b orders.OrderSummary) bool {
		switch sortBy {
		case orders.SortByTotal:
			if a.TotalCost != b.TotalCost {
				return a.TotalCost > b.TotalCost
			}
		case orders.SortByItemCount:
			if a.ItemCount != b.ItemCount {
				return a.ItemCount > b.ItemCount
			}
		case orders.SortByFulfillment:
			if a.Status != b.Status {
				return a.Status > b.Status
			}
		default:
			if !a.PurchasedAt.Equal(b.PurchasedAt) {
				return a.PurchasedAt.After(b.PurchasedAt)
			}
		}
		return a.OrderID > b.OrderID
	}
	sort.Slice(rows, func(i, j int) bool { return less(rows[i], rows[j]) })

	start := page.Offset()
	if start >= len(rows) {
		return []orders.OrderSummary{}, nil
	}
	return rows[start:min(start+page.Size, len(rows))], nil
}

func (s *Store) CountPurchases(_ context.Context, buyerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, link := range s.st.links {
		if link.BuyerID == buyerID {
			n++
		}
	}
	return n, nil
}

// FulfillLine stamps one order line as fulfilled and marks the order
// fulfilled once no line is left open. It reports whether this call
// completed the order. Fulfilling a line twice is a no-op.
func (s *Store) FulfillLine(_ context.Context, orderID, listingID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[orderID]
	if !ok {
		return false, orders.NotFoundError("order", orderID)
	}
	lines := s.st.lines[orderID]
	found := false
	open := 0
	for i := range lines {
		if lines[i].ListingID == listingID {
			found = true
			if lines[i].FulfilledAt == nil {
				ts := at
				lines[i].FulfilledAt = &ts
			}
		}
		if lines[i].FulfilledAt == nil {
			open++
		}
	}
	if !found {
		return false, orders.NotFoundError("order line", listingID)
	}
	if open > 0 || !orders.CanTransition(o.Status, orders.StatusFulfilled) {
		return false, nil
	}
	o.Status = orders.StatusFulfilled
	s.st.orders[orderID] = o
	return true, nil
}
