package orders

import "time"

// Money is an amount in minor currency units (cents).
type Money = int64

type Product struct {
	Name        string
	Description string
	ImageURL    string
	Category    string
}

type Listing struct {
	ID          int64
	ProductName string
	SellerID    int64
	UnitPrice   Money
	Available   int // never below zero
	Active      bool
}

// Account holds buyer funds or seller earnings; the role depends on the
// direction of a transfer.
type Account struct {
	ID      int64
	Balance Money
}

type CartLine struct {
	BuyerID   int64 `json:"-"`
	ListingID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice Money `json:"at_price"` // snapshot taken on add
}

// Subtotal is quantity times the price captured when the line was added.
func (l CartLine) Subtotal() Money { return Money(l.Quantity) * l.UnitPrice }

// CartItem is a cart line with the listing data the cart page shows.
type CartItem struct {
	CartLine
	ProductName string `json:"product_name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	SellerID    int64  `json:"seller_id"`
}

// CartTotal sums the lines at their captured prices.
func CartTotal(items []CartItem) Money {
	var total Money
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

type Order struct {
	ID        int64             `json:"order_id"`
	TotalCost Money             `json:"total_cost"`
	CreatedAt time.Time         `json:"created_at"`
	Status    FulfillmentStatus `json:"fulfillment_status"`
}

type OrderLine struct {
	OrderID     int64      `json:"order_id"`
	ListingID   int64      `json:"product_id"`
	Quantity    int        `json:"quantity"`
	UnitPrice   Money      `json:"at_price"`
	FulfilledAt *time.Time `json:"fulfillment_time"`
}

func (l OrderLine) Subtotal() Money { return Money(l.Quantity) * l.UnitPrice }

// BuyerOrderLink ties an order to its buyer. TotalCostAtPurchase is negative:
// it is a debit in the buyer's history.
type BuyerOrderLink struct {
	BuyerID             int64
	OrderID             int64
	TotalCostAtPurchase Money
}

type OrderDetail struct {
	Order
	BuyerID int64       `json:"buyer_id"`
	Lines   []OrderLine `json:"items"`
}

// OrderSummary is one row of a buyer's purchase history.
type OrderSummary struct {
	OrderID     int64             `json:"order_id"`
	PurchasedAt time.Time         `json:"purchase_date"`
	TotalCost   Money             `json:"total_amount"`
	ItemCount   int               `json:"number_of_items"`
	Status      FulfillmentStatus `json:"fulfillment_status"`
}
