package msg

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// RecordHandler processes one consumed record
type RecordHandler func(context.Context, Record) error

// Consumer wraps a Kafka consumer
type Consumer struct {
	client     *kgo.Client
	logger     *zap.Logger
	topics     []string
	group      string
	pollCount  int64
	errorCount int64

	stop      chan struct{}
	stopped   sync.WaitGroup
	closeOnce sync.Once
}

// NewConsumer creates a group consumer that starts from the earliest offset
// when the group has no committed position.
func NewConsumer(cfg *Config, group string, topics []string, logger *zap.Logger) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(), // Manual commit after handler success
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	c := &Consumer{
		client: client,
		logger: logger,
		topics: topics,
		group:  group,
		stop:   make(chan struct{}),
	}

	logger.Info("consumer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group", group),
		zap.Strings("topics", topics),
	)

	c.stopped.Add(1)
	go c.logStats()

	return c, nil
}

// Run consumes until ctx is done, calling handler for each record and
// committing it once handled.
func (c *Consumer) Run(ctx context.Context, handler RecordHandler) error {
	c.logger.Info("starting consumer",
		zap.String("group", c.group),
		zap.Strings("topics", c.topics),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", zap.String("group", c.group))
			return ctx.Err()
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return fmt.Errorf("kafka client closed")
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if ctx.Err() == nil {
				c.logger.Warn("fetch error",
					zap.String("topic", topic),
					zap.Int32("partition", partition),
					zap.Error(err),
				)
			}
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			rec := fromKgo(record)

			if err := c.handleWithRetry(ctx, rec, handler); err != nil {
				c.logger.Error("handler failed after retries",
					zap.String("topic", rec.Topic),
					zap.String("key", rec.Key),
					zap.Error(err),
				)
				atomic.AddInt64(&c.errorCount, 1)
				continue
			}

			if err := c.client.CommitRecords(ctx, record); err != nil && ctx.Err() == nil {
				c.logger.Warn("commit failed", zap.Int64("offset", rec.Offset), zap.Error(err))
			}
			atomic.AddInt64(&c.pollCount, 1)
		}
	}
}

// handleWithRetry calls handler with bounded retries
func (c *Consumer) handleWithRetry(ctx context.Context, rec Record, handler RecordHandler) error {
	maxRetries := 3
	backoff := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = handler(ctx, rec); err == nil {
			return nil
		}

		if attempt < maxRetries-1 {
			c.logger.Warn("handler failed, retrying",
				zap.String("topic", rec.Topic),
				zap.String("key", rec.Key),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("handler failed after %d attempts: %w", maxRetries, err)
}

// Close stops the stats loop and leaves the group
func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.stopped.Wait()
		c.client.Close()
	})
}

// logStats logs consumer statistics periodically
func (c *Consumer) logStats() {
	defer c.stopped.Done()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.logger.Info("consumer stats",
				zap.String("group", c.group),
				zap.Int64("processed", atomic.LoadInt64(&c.pollCount)),
				zap.Int64("errors", atomic.LoadInt64(&c.errorCount)),
			)
		}
	}
}
