package redisx

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const inFlightMarker = "__in_flight__"

// ErrInFlight means another request with the same key has not finished yet.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// Idempotency remembers the response of a place-order request per buyer and
// client-chosen key.
type Idempotency struct {
	Client redis.Cmdable
}

func (i *Idempotency) key(buyerID int64, key string) string {
	return fmt.Sprintf(KeyIdemPlaceOrder, buyerID, key)
}

// Begin claims the key. When a previous request already completed, its
// stored response is returned and started is false.
func (i *Idempotency) Begin(ctx context.Context, buyerID int64, key string) (stored []byte, started bool, err error) {
	k := i.key(buyerID, key)
	ok, err := i.Client.SetNX(ctx, k, inFlightMarker, TTLInFlight).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "claim idempotency key")
	}
	if ok {
		return nil, true, nil
	}

	v, err := i.Client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// the holder aborted between our SETNX and GET
		return nil, false, ErrInFlight
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "read idempotency key")
	}
	if string(v) == inFlightMarker {
		return nil, false, ErrInFlight
	}
	return v, false, nil
}

// Finish stores the response for replay.
func (i *Idempotency) Finish(ctx context.Context, buyerID int64, key string, response []byte) error {
	return errors.Wrap(i.Client.Set(ctx, i.key(buyerID, key), response, TTLIdempotency).Err(), "store idempotent response")
}

// Abort releases the key so the client can retry, e.g. after a rejected
// order.
func (i *Idempotency) Abort(ctx context.Context, buyerID int64, key string) error {
	return errors.Wrap(i.Client.Del(ctx, i.key(buyerID, key)).Err(), "release idempotency key")
}
