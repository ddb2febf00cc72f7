package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher fans storefront events out to the message broker. Publish is
// non-blocking; delivery happens on a background loop.
type Publisher interface {
	Publish(topic string, envelope Envelope)
}

// Producer is an asynchronous Kafka publisher. Messages are buffered in an
// inbox channel and flushed by a single goroutine; the hash balancer keys on
// the correlation ID so one aggregate's events keep their order.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	logger  *zap.Logger

	// mu guards closed so a Publish racing shutdown drops its event instead
	// of sending on the closed inbox.
	mu     sync.Mutex
	closed bool
}

// NewProducer creates a Producer for the given brokers
func NewProducer(brokers []string, buf int, logger *zap.Logger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		logger:  logger,
	}
}

// Start launches the delivery loop. On context cancellation the remaining
// inbox is flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.closed = true
				close(p.inbox)
				p.mu.Unlock()
				for m := range p.inbox {
					p.write(m)
				}
				if err := p.w.Close(); err != nil {
					p.logger.Error("Failed to close kafka writer", zap.Error(err))
				}
				return
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("topic", m.Topic),
			zap.ByteString("key", m.Key),
			zap.Error(err))
	}
}

// Publish queues an envelope for delivery. When the inbox is full the event is
// dropped with a log entry rather than blocking a request.
func (p *Producer) Publish(topic string, envelope Envelope) {
	value, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("type", envelope.EventType), zap.Error(err))
		return
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(envelope.CorrelationID),
		Value: value,
		Time:  time.Now(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("Producer shut down, dropping event",
			zap.String("topic", topic),
			zap.String("type", envelope.EventType))
		return
	}

	select {
	case p.inbox <- msg:
	default:
		p.logger.Warn("Event inbox full, dropping event",
			zap.String("topic", topic),
			zap.String("type", envelope.EventType))
	}
}

// WaitClosed blocks until the delivery loop has flushed and exited
func (p *Producer) WaitClosed() { <-p.closeCh }

// NopPublisher discards events, used when the broker is not configured
type NopPublisher struct{}

func (NopPublisher) Publish(string, Envelope) {}
