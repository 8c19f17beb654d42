// Package fulfillment applies seller fulfillment events to stored orders.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/ariefcatur/go-marketplace-settlement/internal/kafka"
	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

type LineFulfiller interface {
	FulfillLine(ctx context.Context, orderID, listingID int64, at time.Time) (completed bool, err error)
}

type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Orders      LineFulfiller
	Dedup       Deduper
	Completed   Publisher // order.fulfilled
	ServiceName string
	Log         logrus.FieldLogger
	Now         func() time.Time
}

// HandleLineFulfilled is the consumer handler for order.line.fulfilled.
// Unknown event types are skipped, duplicates are dropped by event id, and
// the order.fulfilled event goes out once, when the last line is stamped.
func (s *Service) HandleLineFulfilled(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		return err
	}
	if env.EventType != orders.EventLineFulfilled {
		return nil
	}

	fresh, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !fresh {
		s.Log.WithField("event_id", env.EventID).Debug("duplicate event skipped")
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.LineFulfilledPayload](env.Payload)
	if err != nil {
		// a payload that cannot be decoded will not decode on redelivery either
		s.Log.WithError(err).WithField("event_id", env.EventID).Error("drop malformed event")
		return nil
	}
	at := p.FulfilledAt
	if at.IsZero() {
		at = s.now()
	}

	log := s.Log.WithFields(logrus.Fields{"order_id": p.OrderID, "listing_id": p.ListingID})
	completed, err := s.Orders.FulfillLine(ctx, p.OrderID, p.ListingID, at)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			log.WithError(err).Warn("fulfillment for unknown order line")
			return nil
		}
		if rerr := s.Dedup.Release(ctx, env.EventID); rerr != nil {
			log.WithError(rerr).Warn("release dedup key")
		}
		return fmt.Errorf("fulfill line: %w", err)
	}
	log.Info("order line fulfilled")

	if completed {
		return s.publishCompleted(p.OrderID, at, env.TraceID)
	}
	return nil
}

func (s *Service) publishCompleted(orderID int64, at time.Time, traceID string) error {
	b, headers, err := kafkax.Encode(orders.EventOrderFulfilled, s.ServiceName, strconv.FormatInt(orderID, 10), traceID,
		orders.OrderFulfilledPayload{OrderID: orderID, FulfilledAt: at})
	if err != nil {
		return err
	}
	s.Completed.Publish(orders.PartitionKey(orderID), b, headers...)
	s.Log.WithField("order_id", orderID).Info("order fulfilled")
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
