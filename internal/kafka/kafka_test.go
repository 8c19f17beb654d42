package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducer_FlushesOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	log, _ := test.NewNullLogger()
	w := &fakeWriter{}
	p := newProducer(w, 16, log)
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		p.Publish([]byte("k"), []byte{byte(i)})
	}
	p.Close()
	p.Close()
	p.WaitClosed()

	assert.Len(t, w.msgs, 5)
	assert.True(t, w.closed)
}

func TestProducer_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	log, hook := test.NewNullLogger()
	w := &fakeWriter{}
	p := newProducer(w, 16, log)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Publish([]byte("k"), []byte("v"))
	cancel()
	p.WaitClosed()

	p.Publish([]byte("late"), []byte("v"))
	assert.Len(t, w.msgs, 1)
	assert.True(t, w.closed)
	assert.Equal(t, "producer closed, message dropped", hook.LastEntry().Message)
}

// blockingWriter holds the first write until release is closed.
type blockingWriter struct {
	fakeWriter
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *blockingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.once.Do(func() {
		close(w.started)
		<-w.release
	})
	return w.fakeWriter.WriteMessages(ctx, msgs...)
}

func TestProducer_CancelWithPublisherWaitingOnFullInbox(t *testing.T) {
	defer goleak.VerifyNone(t)

	for i := 0; i < 25; i++ {
		log, _ := test.NewNullLogger()
		w := &blockingWriter{started: make(chan struct{}), release: make(chan struct{})}
		p := newProducer(w, 1, log)
		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)

		p.Publish([]byte("k"), []byte("in-flight"))
		<-w.started
		p.Publish([]byte("k"), []byte("queued"))

		parked := make(chan struct{})
		go func() {
			defer close(parked)
			p.Publish([]byte("k"), []byte("waiting"))
		}()

		cancel()
		close(w.release)

		closed := make(chan struct{})
		go func() {
			p.WaitClosed()
			close(closed)
		}()
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d: producer did not close after cancel", i)
		}
		select {
		case <-parked:
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d: waiting publish never returned", i)
		}

		w.mu.Lock()
		n := len(w.msgs)
		w.mu.Unlock()
		assert.GreaterOrEqual(t, n, 2)
		assert.LessOrEqual(t, n, 3)
		assert.True(t, w.closed)
	}
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed map[int][]int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, committed: map[int][]int64{}}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed[m.Partition] = append(r.committed[m.Partition], m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func partitionMessages(partition int, n int64) []kafka.Message {
	var msgs []kafka.Message
	for i := int64(0); i < n; i++ {
		msgs = append(msgs, kafka.Message{Partition: partition, Offset: i})
	}
	return msgs
}

func runConsumer(ctx context.Context, t *testing.T, c *Consumer, h Handler) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func fastConsumer(r messageReader, workers int) (*Consumer, *test.Hook) {
	log, hook := test.NewNullLogger()
	c := newConsumer(r, workers, log)
	c.retryBase = time.Millisecond
	c.retryMax = 4 * time.Millisecond
	return c, hook
}

func TestConsumer_RetriesFailedMessageBeforeMovingOn(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := newFakeReader(partitionMessages(0, 6)...)
	c, hook := fastConsumer(r, 3)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var handled []int64
	attempts := map[int64]int{}
	handler := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, m.Offset)
		attempts[m.Offset]++
		if m.Offset%2 == 1 && attempts[m.Offset] <= 2 {
			return errors.New("store unavailable")
		}
		if m.Offset == 5 {
			cancel()
		}
		return nil
	}

	runConsumer(ctx, t, c, handler)

	assert.Equal(t, []int64{0, 1, 1, 1, 2, 3, 3, 3, 4, 5, 5, 5}, handled)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, r.committed[0])
	assert.True(t, r.closed)
	assert.Len(t, hook.Entries, 6)
}

func TestConsumer_NeverCommitsPastFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := newFakeReader(partitionMessages(0, 5)...)
	c, _ := fastConsumer(r, 2)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var handled []int64
	failures := 0
	handler := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, m.Offset)
		if m.Offset != 2 {
			return nil
		}
		failures++
		if failures == 3 {
			cancel()
		}
		return errors.New("store unavailable")
	}

	runConsumer(ctx, t, c, handler)

	assert.Equal(t, []int64{0, 1}, r.committed[0])
	assert.Equal(t, []int64{0, 1, 2, 2, 2}, handled)
}

func TestConsumer_PartitionsProgressIndependently(t *testing.T) {
	defer goleak.VerifyNone(t)
	var msgs []kafka.Message
	p0, p1 := partitionMessages(0, 3), partitionMessages(1, 3)
	for i := range p0 {
		msgs = append(msgs, p0[i], p1[i])
	}
	r := newFakeReader(msgs...)
	c, _ := fastConsumer(r, 2)

	ctx, cancel := context.WithCancel(context.Background())
	handler := func(_ context.Context, m kafka.Message) error {
		if m.Partition == 0 {
			return errors.New("stuck")
		}
		if m.Offset == 2 {
			cancel()
		}
		return nil
	}

	runConsumer(ctx, t, c, handler)

	assert.Empty(t, r.committed[0])
	assert.Equal(t, []int64{0, 1, 2}, r.committed[1])
}

func TestConsumer_Backoff(t *testing.T) {
	log, _ := test.NewNullLogger()
	c := newConsumer(newFakeReader(), 1, log)

	assert.Equal(t, 200*time.Millisecond, c.backoff(0))
	assert.Equal(t, 800*time.Millisecond, c.backoff(2))
	assert.Equal(t, 30*time.Second, c.backoff(10))
	assert.Equal(t, 30*time.Second, c.backoff(64))
}

func TestEncode(t *testing.T) {
	payload := orders.OrderFulfilledPayload{OrderID: 9, FulfilledAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}

	b, headers, err := Encode(orders.EventOrderFulfilled, "fulfillment", "9", "req-1", payload)
	require.NoError(t, err)
	require.Len(t, headers, 2)
	assert.Equal(t, HeaderEventType, headers[0].Key)
	assert.Equal(t, orders.EventOrderFulfilled, string(headers[0].Value))

	env, err := UnmarshalEnvelope(b)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "9", env.CorrelationID)
	assert.Equal(t, "req-1", env.TraceID)

	got, err := UnwrapPayload[orders.OrderFulfilledPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = UnmarshalEnvelope([]byte("{"))
	assert.Error(t, err)
}
