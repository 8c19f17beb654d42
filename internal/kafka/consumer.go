package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Handler returns nil only when the message is done and its offset may be
// committed.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       messageReader
	workers int
	log     logrus.FieldLogger

	retryBase time.Duration
	retryMax  time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, log logrus.FieldLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return newConsumer(r, workers, log.WithFields(logrus.Fields{"topic": topic, "group": group}))
}

func newConsumer(r messageReader, workers int, log logrus.FieldLogger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:         r,
		workers:   workers,
		log:       log,
		retryBase: 200 * time.Millisecond,
		retryMax:  30 * time.Second,
	}
}

// Start fetches messages until ctx ends. Every partition is owned by one
// worker, which handles its messages in offset order. A committed offset
// covers everything before it, so a failed message is retried with backoff
// and the worker does not move past it. Whatever is left uncommitted when ctx
// ends is fetched again by the next group member.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(worker int, lane <-chan kafka.Message) {
			defer wg.Done()
			log := c.log.WithField("worker", worker)
			for m := range lane {
				if ctx.Err() != nil {
					continue
				}
				c.process(ctx, log, h, m)
			}
		}(i, lanes[i])
	}
	defer wg.Wait()
	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process runs h until it succeeds and then commits m. It returns without
// committing once ctx ends.
func (c *Consumer) process(ctx context.Context, log logrus.FieldLogger, h Handler, m kafka.Message) {
	fields := logrus.Fields{"partition": m.Partition, "offset": m.Offset}
	for attempt := 0; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		delay := c.backoff(attempt)
		log.WithFields(fields).WithError(err).WithField("retry_in", delay.String()).Error("handle message")
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	if err := c.r.CommitMessages(ctx, m); err != nil {
		log.WithFields(fields).WithError(err).Error("commit message")
	}
}

// backoff doubles retryBase per attempt, capped at retryMax.
func (c *Consumer) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return c.retryMax
	}
	d := c.retryBase << attempt
	if d <= 0 || d > c.retryMax {
		return c.retryMax
	}
	return d
}
