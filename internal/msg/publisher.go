package msg

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ismaiel54/market-feed-handler/internal/feed"
)

// TickProducer is the part of Producer a TickPublisher needs
type TickProducer interface {
	Produce(ctx context.Context, topic string, key string, v any) error
}

// TickPublisher forwards every observed tick to Kafka, keyed by symbol so a
// symbol's ticks stay ordered within one partition.
type TickPublisher struct {
	producer  TickProducer
	topic     string
	sessionID string

	published atomic.Int64
}

func NewTickPublisher(producer TickProducer, topic, sessionID string) *TickPublisher {
	return &TickPublisher{
		producer:  producer,
		topic:     topic,
		sessionID: sessionID,
	}
}

// Publish satisfies feed.TickFunc
func (p *TickPublisher) Publish(t feed.Tick) error {
	msg := TickMsg{
		EventID:   uuid.NewString(),
		SessionID: p.sessionID,
		Symbol:    t.Symbol,
		Price:     t.Price,
		Volume:    t.Volume,
		Timestamp: t.Timestamp,
		Exchange:  t.Exchange,
	}

	if err := p.producer.Produce(context.Background(), p.topic, t.Symbol, msg); err != nil {
		return err
	}
	p.published.Add(1)
	return nil
}

// Published returns how many ticks were handed to the producer
func (p *TickPublisher) Published() int64 {
	return p.published.Load()
}
