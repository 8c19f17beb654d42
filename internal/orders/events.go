package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventLineFulfilled  = "OrderLineFulfilled"
	EventOrderFulfilled = "OrderFulfilled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type PlacedLine struct {
	ListingID int64 `json:"product_id"`
	SellerID  int64 `json:"seller_id"`
	Qty       int   `json:"qty"`
	UnitPrice Money `json:"at_price"`
}

type OrderPlacedPayload struct {
	OrderID   int64        `json:"order_id"`
	BuyerID   int64        `json:"buyer_id"`
	TotalCost Money        `json:"total_cost"`
	CreatedAt time.Time    `json:"created_at"`
	Lines     []PlacedLine `json:"lines"`
}

// LineFulfilledPayload is emitted by the seller-facing fulfillment service.
type LineFulfilledPayload struct {
	OrderID     int64     `json:"order_id"`
	ListingID   int64     `json:"product_id"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}

type OrderFulfilledPayload struct {
	OrderID     int64     `json:"order_id"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}
