package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/ismaiel54/market-feed-handler/internal/chaos"
	"github.com/ismaiel54/market-feed-handler/internal/config"
	"github.com/ismaiel54/market-feed-handler/internal/feed"
	"github.com/ismaiel54/market-feed-handler/internal/logging"
	"github.com/ismaiel54/market-feed-handler/internal/msg"
	"github.com/ismaiel54/market-feed-handler/internal/observability"
	"github.com/ismaiel54/market-feed-handler/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("feed-handler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting feed-handler service",
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("endpoint", cfg.Endpoint),
		zap.Strings("symbols", cfg.Symbols),
		zap.Bool("kafka", cfg.EnableKafka),
	)
	if cfg.APIKey == "" {
		logger.Warn("FINNHUB_API_KEY is empty, upstream will likely reject the connection")
	}

	// Upstream transport, optionally with fault injection on inbound frames
	chaosInjector := chaos.New(chaos.LoadConfig(), logger)
	conn := transport.NewConn(transport.Options{
		URL:     cfg.FeedURL(),
		Backoff: transport.DefaultBackoff(),
		Chaos:   chaosInjector,
	}, logger.Named("transport"))

	handler := feed.New(feed.Config{
		Symbols:           cfg.Symbols,
		EnableLogging:     cfg.EnableLogging,
		Exchange:          cfg.Exchange,
		HistoryCapacity:   cfg.HistoryCapacity,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SettleDelay:       cfg.SettleDelay,
	}, conn, logger.Named("feed"))

	healthChecker := observability.NewHealthChecker(handler, logger)

	// Kafka tick publishing
	var producer *msg.Producer
	if cfg.EnableKafka {
		producer, err = msg.NewProducer(&msg.Config{
			Brokers:  cfg.KafkaBrokers,
			ClientID: cfg.ServiceName,
			Topic:    cfg.KafkaTopic,
		}, logger)
		if err != nil {
			logger.Fatal("failed to create producer", zap.Error(err))
		}

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = producer.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("kafka not reachable yet", zap.Error(err))
		}
		healthChecker.SetKafkaReady(err == nil)

		publisher := msg.NewTickPublisher(producer, cfg.KafkaTopic, handler.ID())
		handler.OnTick(publisher.Publish)
	}

	// Create gRPC server
	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	// Start HTTP health server
	httpErrCh := make(chan error, 1)
	go func() {
		if err := healthChecker.StartHTTPServer(cfg.HTTPAddr()); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := handler.Start(ctx); err != nil {
		logger.Fatal("failed to start feed handler", zap.Error(err))
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		healthChecker.Watch(watchCtx, time.Second)
	}()

	// Wait for interrupt signal
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
	case err := <-httpErrCh:
		logger.Error("HTTP server error", zap.Error(err))
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully...")

	stopWatch()
	<-watchDone

	handler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if producer != nil {
		producer.Close(shutdownCtx)
	}

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}

	grpcServer.GracefulStop()

	logger.Info("feed-handler service stopped")
}
