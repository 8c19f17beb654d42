package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer queues messages in memory and writes them from one goroutine,
// so publishing never blocks a request on the broker.
type Producer struct {
	w     messageWriter
	log   logrus.FieldLogger
	inbox chan kafka.Message

	// closing wakes publishers parked on a full inbox; mu then waits for
	// them to leave before inbox is closed.
	closing chan struct{}
	mu      sync.RWMutex
	closed  bool
	once    sync.Once

	closeCh chan struct{}
}

func NewProducer(brokers []string, topic string, buf int, log logrus.FieldLogger) *Producer {
	log = log.WithField("topic", topic)
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.WithError(err).WithField("messages", len(msgs)).Error("kafka write failed")
			}
		},
	}
	return newProducer(w, buf, log)
}

func newProducer(w messageWriter, buf int, log logrus.FieldLogger) *Producer {
	return &Producer{
		w:       w,
		log:     log,
		inbox:   make(chan kafka.Message, buf),
		closing: make(chan struct{}),
		closeCh: make(chan struct{}),
	}
}

// Start runs the write loop until Close is called or ctx ends. Queued
// messages are flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		done := ctx.Done()
		for {
			select {
			case <-done:
				p.Close()
				done = nil
			case m, ok := <-p.inbox:
				if !ok {
					if err := p.w.Close(); err != nil {
						p.log.WithError(err).Warn("close kafka writer")
					}
					return
				}
				if err := p.w.WriteMessages(context.Background(), m); err != nil {
					p.log.WithError(err).WithField("key", string(m.Key)).Error("publish failed")
				}
			}
		}
	}()
}

// Publish queues a message, waiting while the inbox is full. Messages
// published after Close, or still waiting when it is called, are dropped.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped(key)
		return
	}
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case p.inbox <- m:
	case <-p.closing:
		p.dropped(key)
	}
}

func (p *Producer) dropped(key []byte) {
	p.log.WithField("key", string(key)).Warn("producer closed, message dropped")
}

// Close stops accepting messages. The write loop flushes what is queued and
// then closes the writer; use WaitClosed to wait for that.
func (p *Producer) Close() {
	p.once.Do(func() {
		close(p.closing)
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

func (p *Producer) WaitClosed() { <-p.closeCh }
