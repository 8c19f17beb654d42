package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/ariefcatur/go-marketplace-settlement/internal/kafka"
	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
	"github.com/ariefcatur/go-marketplace-settlement/internal/settlement"
)

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, buyerID int64) (settlement.Receipt, error)
}

type OrderHistory interface {
	Order(ctx context.Context, buyerID, orderID int64) (orders.OrderDetail, error)
	Purchases(ctx context.Context, buyerID int64, page orders.Page, sortBy string) (settlement.PurchasePage, error)
}

// IdempotencyStore is implemented by redisx.Idempotency.
type IdempotencyStore interface {
	Begin(ctx context.Context, buyerID int64, key string) (stored []byte, started bool, err error)
	Finish(ctx context.Context, buyerID int64, key string, response []byte) error
	Abort(ctx context.Context, buyerID int64, key string) error
}

type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Engine   OrderPlacer
	History  OrderHistory
	Idem     IdempotencyStore // optional
	Producer EventPublisher   // optional, order.placed
	Service  string
	Log      logrus.FieldLogger
}

type PlaceOrderResp struct {
	Status     string       `json:"status"`
	PurchaseID int64        `json:"purchase_id"`
	DateTime   time.Time    `json:"date_time"`
	TotalCost  orders.Money `json:"total_cost"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/place-order", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/purchase-history", h.purchaseHistory)
}

const headerIdempotencyKey = "Idempotency-Key"

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID := buyer(r)
	key := r.Header.Get(headerIdempotencyKey)
	useIdem := key != "" && h.Idem != nil

	if useIdem {
		stored, started, err := h.Idem.Begin(ctx, buyerID, key)
		if err != nil {
			writeError(w, r, h.Log, "Failed to place order", err)
			return
		}
		if !started {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(stored)
			return
		}
	}

	rc, err := h.Engine.PlaceOrder(ctx, buyerID)
	if err != nil {
		if useIdem {
			if aerr := h.Idem.Abort(context.WithoutCancel(ctx), buyerID, key); aerr != nil {
				h.Log.WithError(aerr).Warn("release idempotency key")
			}
		}
		writeError(w, r, h.Log, "Failed to place order", err)
		return
	}

	body, err := json.Marshal(PlaceOrderResp{
		Status:     "Order added successfully",
		PurchaseID: rc.OrderID,
		DateTime:   rc.CreatedAt,
		TotalCost:  rc.TotalCost,
	})
	if err != nil {
		writeError(w, r, h.Log, "Failed to place order", err)
		return
	}
	if useIdem {
		if err := h.Idem.Finish(context.WithoutCancel(ctx), buyerID, key, body); err != nil {
			h.Log.WithError(err).WithField("order_id", rc.OrderID).Warn("store idempotent response")
		}
	}
	h.publishPlaced(rc, middleware.GetReqID(ctx))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// publishPlaced runs after commit; a lost event never undoes the order.
func (h *OrdersHandler) publishPlaced(rc settlement.Receipt, traceID string) {
	if h.Producer == nil {
		return
	}
	b, headers, err := kafkax.Encode(orders.EventOrderPlaced, h.Service, strconv.FormatInt(rc.OrderID, 10), traceID, rc.Event())
	if err != nil {
		h.Log.WithError(err).WithField("order_id", rc.OrderID).Error("encode order placed event")
		return
	}
	h.Producer.Publish(orders.PartitionKey(rc.OrderID), b, headers...)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}
	d, err := h.History.Order(r.Context(), buyer(r), id)
	if err != nil {
		writeError(w, r, h.Log, "Failed to load order", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *OrdersHandler) purchaseHistory(w http.ResponseWriter, r *http.Request) {
	page, ok1 := intQuery(r, "page", orders.DefaultPage)
	size, ok2 := intQuery(r, "itemsPerPage", orders.DefaultPageSize)
	if !ok1 || !ok2 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "page and itemsPerPage must be integers"})
		return
	}
	p, err := h.History.Purchases(r.Context(), buyer(r), orders.Page{Number: page, Size: size}, r.URL.Query().Get("sortBy"))
	if err != nil {
		writeError(w, r, h.Log, "Failed to load purchase history", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
