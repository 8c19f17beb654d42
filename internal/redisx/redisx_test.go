package redisx

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *Idempotency {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb, err := Connect(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return &Idempotency{Client: rdb}
}

func TestIdempotency(t *testing.T) {
	idem := testClient(t)
	ctx := context.Background()
	key := uuid.NewString()

	_, started, err := idem.Begin(ctx, 1, key)
	require.NoError(t, err)
	assert.True(t, started)

	_, _, err = idem.Begin(ctx, 1, key)
	assert.ErrorIs(t, err, ErrInFlight)

	// another buyer may use the same key
	_, started, err = idem.Begin(ctx, 2, key)
	require.NoError(t, err)
	assert.True(t, started)

	require.NoError(t, idem.Finish(ctx, 1, key, []byte(`{"order_id":7}`)))
	stored, started, err := idem.Begin(ctx, 1, key)
	require.NoError(t, err)
	assert.False(t, started)
	assert.JSONEq(t, `{"order_id":7}`, string(stored))

	require.NoError(t, idem.Abort(ctx, 2, key))
	_, started, err = idem.Begin(ctx, 2, key)
	require.NoError(t, err)
	assert.True(t, started)
}

func TestDedup(t *testing.T) {
	idem := testClient(t)
	d := &Dedup{Client: idem.Client, Service: "fulfillment-test"}
	ctx := context.Background()
	id := uuid.NewString()

	first, err := d.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Release(ctx, id))
	after, err := d.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, after)
}

func TestKeys(t *testing.T) {
	i := &Idempotency{}
	assert.Equal(t, "idem:order:place:42:abc", i.key(42, "abc"))
	d := &Dedup{Service: "fulfillment"}
	assert.Equal(t, "dedup:fulfillment:ev-1", d.key("ev-1"))
}
