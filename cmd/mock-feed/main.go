package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ismaiel54/market-feed-handler/internal/logging"
	"github.com/ismaiel54/market-feed-handler/internal/mockfeed"
)

// Local stand-in for the upstream trade websocket:
//
//	go run ./cmd/mock-feed -addr :9000
//	FEED_ENDPOINT=ws://127.0.0.1:9000 FEED_SYMBOLS=AAPL,MSFT go run ./cmd/feed-handler
func main() {
	var (
		addr         = flag.String("addr", ":9000", "Listen address")
		seed         = flag.Int64("seed", 42, "Random seed for deterministic generation")
		interval     = flag.Duration("interval", 100*time.Millisecond, "Delay between batches")
		batchSize    = flag.Int("batch", 1, "Trades per subscribed symbol per batch")
		malformedPct = flag.Int("malformed-pct", 0, "Percentage of malformed batches (0-100)")
		pingEvery    = flag.Int("ping-every", 50, "Send a ping every N batches (0 disables)")
		logLevel     = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	if *malformedPct < 0 || *malformedPct > 100 {
		fmt.Fprintf(os.Stderr, "malformed-pct must be within 0-100, got %d\n", *malformedPct)
		os.Exit(1)
	}

	logger, err := logging.NewLogger("mock-feed", *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	srv := mockfeed.NewServer(mockfeed.Config{
		Seed:         *seed,
		Interval:     *interval,
		BatchSize:    *batchSize,
		MalformedPct: *malformedPct,
		PingEvery:    *pingEvery,
	}, logger)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting mock feed",
		zap.String("addr", *addr),
		zap.Int64("seed", *seed),
		zap.Duration("interval", *interval),
		zap.Int("malformed_pct", *malformedPct),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Fatal("mock feed server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Shutdown does not wait for hijacked websocket connections
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("error shutting down", zap.Error(err))
	}

	logger.Info("mock feed stopped", zap.Int64("trades_sent", srv.Sent()))
}
