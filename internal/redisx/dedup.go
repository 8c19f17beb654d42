package redisx

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Dedup records processed event ids for one consumer service.
type Dedup struct {
	Client  redis.Cmdable
	Service string
}

func (d *Dedup) key(eventID string) string { return fmt.Sprintf(KeyDedup, d.Service, eventID) }

// Claim marks the event as processed. It returns false when the event was
// already claimed.
func (d *Dedup) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.Client.SetNX(ctx, d.key(eventID), "1", TTLDedup).Result()
	if err != nil {
		return false, errors.Wrap(err, "claim event")
	}
	return ok, nil
}

// Release forgets the event so a redelivery is processed again.
func (d *Dedup) Release(ctx context.Context, eventID string) error {
	return errors.Wrap(d.Client.Del(ctx, d.key(eventID)).Err(), "release event")
}
