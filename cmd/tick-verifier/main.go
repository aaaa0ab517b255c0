package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ismaiel54/market-feed-handler/internal/logging"
	"github.com/ismaiel54/market-feed-handler/internal/msg"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <duration_seconds> [brokers]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s 30 127.0.0.1:9092\n", os.Args[0])
		os.Exit(1)
	}

	var durationSeconds int
	if _, err := fmt.Sscanf(os.Args[1], "%d", &durationSeconds); err != nil || durationSeconds <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid duration: %s\n", os.Args[1])
		os.Exit(1)
	}

	logger, err := logging.NewLogger("tick-verifier", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := msg.LoadConfig("tick-verifier")
	if len(os.Args) >= 3 {
		cfg.Brokers = strings.Split(os.Args[2], ",")
		for i := range cfg.Brokers {
			cfg.Brokers[i] = strings.TrimSpace(cfg.Brokers[i])
		}
	}

	logger.Info("starting tick verifier",
		zap.Int("duration_seconds", durationSeconds),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)

	// Fresh group so every run reads the topic from the start
	group := "tick-verifier-" + uuid.NewString()
	consumer, err := msg.NewConsumer(cfg, group, []string{cfg.Topic}, logger)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(durationSeconds)*time.Second)
	defer cancel()

	v := newVerifier()
	err = consumer.Run(ctx, func(ctx context.Context, rec msg.Record) error {
		tick, err := msg.DecodeTick(rec)
		if err != nil {
			logger.Warn("skipping undecodable record", zap.Error(err))
			return nil
		}
		v.observe(tick, rec.Offset)
		return nil
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("consumer error", zap.Error(err))
	}

	v.report(os.Stdout)
	if !v.passed() {
		os.Exit(1)
	}
}
