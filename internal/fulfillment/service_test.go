package fulfillment_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-marketplace-settlement/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-marketplace-settlement/internal/kafka"
	"github.com/ariefcatur/go-marketplace-settlement/internal/memstore"
	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

type published struct {
	key   []byte
	value []byte
}

type recorder struct{ msgs []published }

func (r *recorder) Publish(key, value []byte, _ ...kafkago.Header) {
	r.msgs = append(r.msgs, published{key: key, value: value})
}

type failingFulfiller struct{}

func (failingFulfiller) FulfillLine(context.Context, int64, int64, time.Time) (bool, error) {
	return false, errors.New("connection reset")
}

var at = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func lineEvent(t *testing.T, orderID, listingID int64) kafkago.Message {
	t.Helper()
	b, headers, err := kafkax.Encode(orders.EventLineFulfilled, "seller-portal", "", "trace-1",
		orders.LineFulfilledPayload{OrderID: orderID, ListingID: listingID, FulfilledAt: at})
	require.NoError(t, err)
	return kafkago.Message{Value: b, Headers: headers}
}

func newService(t *testing.T) (*fulfillment.Service, *memstore.Store, *recorder, *memDedup) {
	t.Helper()
	store := memstore.New()
	store.SeedOrder(orders.Order{ID: 8, TotalCost: 20}, 1, []orders.OrderLine{
		{OrderID: 8, ListingID: 1, Quantity: 1, UnitPrice: 10},
		{OrderID: 8, ListingID: 2, Quantity: 1, UnitPrice: 10},
	})
	log, _ := test.NewNullLogger()
	rec := &recorder{}
	dedup := &memDedup{}
	return &fulfillment.Service{Orders: store, Dedup: dedup, Completed: rec, ServiceName: "fulfillment", Log: log}, store, rec, dedup
}

func TestHandleLineFulfilled_CompletesOrderOnce(t *testing.T) {
	svc, store, rec, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleLineFulfilled(ctx, lineEvent(t, 8, 1)))
	assert.Empty(t, rec.msgs)

	last := lineEvent(t, 8, 2)
	require.NoError(t, svc.HandleLineFulfilled(ctx, last))
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, "8", string(rec.msgs[0].key))

	env, err := kafkax.UnmarshalEnvelope(rec.msgs[0].value)
	require.NoError(t, err)
	assert.Equal(t, orders.EventOrderFulfilled, env.EventType)
	assert.Equal(t, "trace-1", env.TraceID)
	var p orders.OrderFulfilledPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, int64(8), p.OrderID)
	assert.Equal(t, at, p.FulfilledAt)

	// redelivery of the same event is a no-op
	require.NoError(t, svc.HandleLineFulfilled(ctx, last))
	assert.Len(t, rec.msgs, 1)
	assert.Equal(t, orders.StatusFulfilled, store.Orders()[0].Status)
}

func TestHandleLineFulfilled_Skips(t *testing.T) {
	svc, _, rec, _ := newService(t)
	ctx := context.Background()

	other, _, err := kafkax.Encode(orders.EventOrderPlaced, "api", "8", "", orders.OrderPlacedPayload{OrderID: 8})
	require.NoError(t, err)
	assert.NoError(t, svc.HandleLineFulfilled(ctx, kafkago.Message{Value: other}))

	assert.NoError(t, svc.HandleLineFulfilled(ctx, lineEvent(t, 99, 1)), "unknown orders are not retried")
	assert.Error(t, svc.HandleLineFulfilled(ctx, kafkago.Message{Value: []byte("not json")}))
	assert.Empty(t, rec.msgs)
}

func TestHandleLineFulfilled_ReleasesOnStoreFailure(t *testing.T) {
	svc, _, _, dedup := newService(t)
	svc.Orders = failingFulfiller{}
	msg := lineEvent(t, 8, 1)

	err := svc.HandleLineFulfilled(context.Background(), msg)

	require.Error(t, err)
	env, err := kafkax.UnmarshalEnvelope(msg.Value)
	require.NoError(t, err)
	fresh, err := dedup.Claim(context.Background(), env.EventID)
	require.NoError(t, err)
	assert.True(t, fresh, "failed events must be processed again on redelivery")
}
