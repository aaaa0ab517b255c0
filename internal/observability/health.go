package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ismaiel54/market-feed-handler/internal/feed"
)

// FeedStatus is the view of a feed session the health endpoints expose
type FeedStatus interface {
	IsRunning() bool
	IsConnected() bool
	Metrics() feed.Metrics
}

// HealthChecker manages health checks for both gRPC and HTTP
type HealthChecker struct {
	grpcHealth *health.Server
	httpServer *http.Server
	feed       FeedStatus
	logger     *zap.Logger
	mu         sync.RWMutex
	shutdown   bool
	kafkaReady bool
	usesKafka  bool
	serving    bool
}

// NewHealthChecker creates a new health checker for status
func NewHealthChecker(status FeedStatus, logger *zap.Logger) *HealthChecker {
	h := &HealthChecker{
		grpcHealth: health.NewServer(),
		feed:       status,
		logger:     logger,
	}
	h.grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// RegisterGRPC registers the health service with the gRPC server
func (h *HealthChecker) RegisterGRPC(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.grpcHealth)
	h.Refresh()
}

// Handler returns the HTTP routes: /healthz and /metrics
func (h *HealthChecker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/metrics", h.handleMetrics)
	return mux
}

// StartHTTPServer starts the HTTP health server and blocks until it stops
func (h *HealthChecker) StartHTTPServer(addr string) error {
	h.mu.Lock()
	h.httpServer = &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := h.httpServer
	h.mu.Unlock()

	h.logger.Info("starting HTTP health server", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Watch keeps the gRPC serving status in step with the feed connection
// until ctx is done.
func (h *HealthChecker) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Refresh()
		}
	}
}

// Refresh sets the gRPC status to SERVING only while the feed is connected
func (h *HealthChecker) Refresh() {
	h.mu.Lock()
	defer h.mu.Unlock()

	serving := !h.shutdown && h.feed.IsConnected()
	if serving == h.serving {
		return
	}
	h.serving = serving

	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.grpcHealth.SetServingStatus("", status)
	h.logger.Info("health status changed", zap.String("status", status.String()))
}

// Shutdown gracefully shuts down the health checker
func (h *HealthChecker) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.shutdown = true
	h.serving = false
	h.grpcHealth.Shutdown()
	srv := h.httpServer
	h.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// SetKafkaReady sets the Kafka client readiness status
func (h *HealthChecker) SetKafkaReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kafkaReady = ready
	h.usesKafka = true
}

func (h *HealthChecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	shutdown := h.shutdown
	kafkaReady := h.kafkaReady
	usesKafka := h.usesKafka
	h.mu.RUnlock()

	// Ready while the session runs and, when publishing, Kafka is reachable
	if !shutdown && h.feed.IsRunning() && (!usesKafka || kafkaReady) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT_READY"))
	}
}

func (h *HealthChecker) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body := struct {
		feed.Metrics
		Connected bool `json:"connected"`
		Running   bool `json:"running"`
	}{
		Metrics:   h.feed.Metrics(),
		Connected: h.feed.IsConnected(),
		Running:   h.feed.IsRunning(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("failed to encode metrics", zap.Error(err))
	}
}
