package msg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const statsInterval = 30 * time.Second

// Producer wraps a Kafka producer
type Producer struct {
	client       *kgo.Client
	logger       *zap.Logger
	produceCount int64
	errorCount   int64

	stop      chan struct{}
	stopped   sync.WaitGroup
	closeOnce sync.Once
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg *Config, logger *zap.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.DisableIdempotentWrite(),
		kgo.ProducerLinger(5 * time.Millisecond),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	p := &Producer{
		client: client,
		logger: logger,
		stop:   make(chan struct{}),
	}

	logger.Info("producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("client_id", cfg.ClientID),
	)

	p.stopped.Add(1)
	go p.logStats()

	return p, nil
}

// Produce enqueues a JSON message without waiting for the ack. Delivery
// failures are counted and logged from the client's promise.
func (p *Producer) Produce(ctx context.Context, topic string, key string, v any) error {
	record, err := p.record(topic, key, v)
	if err != nil {
		return err
	}

	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			atomic.AddInt64(&p.errorCount, 1)
			p.logger.Warn("failed to produce message",
				zap.String("topic", r.Topic),
				zap.String("key", string(r.Key)),
				zap.Error(err),
			)
			return
		}
		atomic.AddInt64(&p.produceCount, 1)
	})
	return nil
}

func (p *Producer) record(topic, key string, v any) (*kgo.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}, nil
}

// Ping checks that at least one broker is reachable
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Stats returns the produced and failed counts
func (p *Producer) Stats() (produced, failed int64) {
	return atomic.LoadInt64(&p.produceCount), atomic.LoadInt64(&p.errorCount)
}

// Close flushes buffered records, stops the stats loop and closes the client
func (p *Producer) Close(ctx context.Context) {
	p.closeOnce.Do(func() {
		if err := p.client.Flush(ctx); err != nil {
			p.logger.Warn("flush before close failed", zap.Error(err))
		}
		close(p.stop)
		p.stopped.Wait()
		p.client.Close()

		produced, failed := p.Stats()
		p.logger.Info("producer closed",
			zap.Int64("produced", produced),
			zap.Int64("errors", failed),
		)
	})
}

// logStats logs producer statistics periodically
func (p *Producer) logStats() {
	defer p.stopped.Done()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			produced, failed := p.Stats()
			p.logger.Info("producer stats",
				zap.Int64("produced", produced),
				zap.Int64("errors", failed),
			)
		}
	}
}
