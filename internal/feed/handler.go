package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ismaiel54/market-feed-handler/internal/transport"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSettleDelay       = 2 * time.Second
	DefaultExchange          = "finnhub"

	settlePoll = 10 * time.Millisecond
)

// Config tunes a Handler. Zero values fall back to the package defaults.
type Config struct {
	Symbols           []string
	EnableLogging     bool
	Exchange          string
	HistoryCapacity   int
	LatencyWindow     int
	HeartbeatInterval time.Duration
	// SettleDelay bounds how long Start waits for the first handshake
	SettleDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.LatencyWindow <= 0 {
		c.LatencyWindow = DefaultLatencyWindow
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// Transport is the upstream connection driven by a Handler.
// transport.Conn is the production implementation.
type Transport interface {
	Open(handler transport.Handler) error
	SendJSON(v any) error
	Close() error
}

type directive struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Handler owns one upstream session: it decodes trade batches into ticks,
// keeps per-symbol history, fans ticks out to observers and tracks metrics.
type Handler struct {
	id        string
	cfg       Config
	transport Transport
	logger    *zap.Logger
	// reports is a no-op logger when logging is disabled
	reports *zap.Logger

	history   *History
	observers *observers
	metrics   *metricsRecorder

	connected atomic.Bool
	running   atomic.Bool

	lifecycleMu sync.Mutex
	hb          *heartbeat

	// dispatchMu is held while a decoded batch is being processed;
	// dispatcher is the goroutine holding it, 0 when idle.
	dispatchMu sync.Mutex
	dispatcher atomic.Uint64
	// set when Stop ran inside an observer; the batch emits the final report
	reportPending atomic.Bool
}

// New creates a stopped Handler over t
func New(cfg Config, t Transport, logger *zap.Logger) *Handler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	id := uuid.NewString()
	logger = logger.With(zap.String("session_id", id))
	reports := logger
	if !cfg.EnableLogging {
		reports = zap.NewNop()
	}

	return &Handler{
		id:        id,
		cfg:       cfg,
		transport: t,
		logger:    logger,
		reports:   reports,
		history:   NewHistory(cfg.HistoryCapacity),
		observers: newObservers(logger),
		metrics:   newMetricsRecorder(cfg.LatencyWindow),
	}
}

// ID identifies this session in logs and published ticks
func (h *Handler) ID() string { return h.id }

// Start opens the transport, waits for the handshake to settle, subscribes
// the configured symbols and starts the heartbeat. Calling Start on a running
// handler is a no-op.
func (h *Handler) Start(ctx context.Context) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	if h.running.Load() {
		return nil
	}
	h.running.Store(true)

	if err := h.transport.Open(h.handleEvent); err != nil {
		h.running.Store(false)
		return fmt.Errorf("failed to open transport: %w", err)
	}

	h.awaitSettle(ctx)
	if !h.connected.Load() {
		h.logger.Warn("transport not connected after settle delay", zap.Duration("settle_delay", h.cfg.SettleDelay))
	}

	h.Subscribe(h.cfg.Symbols...)

	h.hb = startHeartbeat(h.cfg.HeartbeatInterval, h.heartbeatSnapshot, h.reportHeartbeat)

	h.logger.Info("feed handler started",
		zap.Strings("symbols", h.cfg.Symbols),
		zap.String("exchange", h.cfg.Exchange),
		zap.Bool("connected", h.connected.Load()),
	)
	return nil
}

func (h *Handler) awaitSettle(ctx context.Context) {
	deadline := time.NewTimer(h.cfg.SettleDelay)
	defer deadline.Stop()
	poll := time.NewTicker(settlePoll)
	defer poll.Stop()

	for !h.connected.Load() {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-poll.C:
		}
	}
}

// Stop stops the heartbeat, closes the transport, waits for the batch being
// dispatched (no tick reaches an observer once Stop has returned) and emits
// the final report. Stop on a stopped handler is a no-op.
//
// Called from an observer, Stop does not wait for the batch it is part of:
// the remaining observers and ticks of that batch are skipped and the final
// report is emitted when the batch unwinds.
func (h *Handler) Stop() {
	if h.onDispatchGoroutine() {
		h.stopFromObserver()
		return
	}

	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()
	h.stopLocked(true)
}

func (h *Handler) stopFromObserver() {
	if !h.lifecycleMu.TryLock() {
		// a Start or Stop holds the lock and may be waiting on this batch
		go h.Stop()
		return
	}
	defer h.lifecycleMu.Unlock()
	h.stopLocked(false)
}

func (h *Handler) stopLocked(waitDispatch bool) {
	if !h.running.Load() {
		return
	}
	h.running.Store(false)
	h.connected.Store(false)

	if h.hb != nil {
		h.hb.stop()
		h.hb = nil
	}

	if err := h.transport.Close(); err != nil {
		h.logger.Warn("error closing transport", zap.Error(err))
	}

	if !waitDispatch {
		h.reportPending.Store(true)
		return
	}

	// batches re-check running under dispatchMu, so none dispatches after this
	h.dispatchMu.Lock()
	h.dispatchMu.Unlock()

	h.reportFinal()
}

func (h *Handler) reportFinal() {
	h.reports.Info("feed handler stopped", zap.Object("metrics", h.Metrics()))
}

func (h *Handler) onDispatchGoroutine() bool {
	id := h.dispatcher.Load()
	return id != 0 && id == goroutineID()
}

// Subscribe asks the upstream for trades on each symbol. Directives sent
// while the transport is not connected are dropped.
func (h *Handler) Subscribe(symbols ...string) {
	h.send("subscribe", symbols)
}

// Unsubscribe stops trades for each symbol, with the same delivery rules as Subscribe
func (h *Handler) Unsubscribe(symbols ...string) {
	h.send("unsubscribe", symbols)
}

func (h *Handler) send(kind string, symbols []string) {
	for _, s := range symbols {
		err := h.transport.SendJSON(directive{Type: kind, Symbol: s})
		switch {
		case err == nil:
			h.reports.Debug("directive sent", zap.String("type", kind), zap.String("symbol", s))
		case errors.Is(err, transport.ErrNotConnected):
			h.reports.Debug("directive dropped, transport not connected", zap.String("type", kind), zap.String("symbol", s))
		default:
			h.logger.Warn("failed to send directive", zap.String("type", kind), zap.String("symbol", s), zap.Error(err))
		}
	}
}

// OnTick registers fn for every tick received from now on
func (h *Handler) OnTick(fn TickFunc) {
	h.observers.Add(fn)
}

// ClearObservers removes every registered observer
func (h *Handler) ClearObservers() {
	h.observers.Clear()
}

// RecentTicks returns up to count of the latest ticks for symbol, oldest first
func (h *Handler) RecentTicks(symbol string, count int) []Tick {
	return h.history.Recent(symbol, count)
}

// Metrics returns a consistent snapshot of the counters
func (h *Handler) Metrics() Metrics {
	return h.metrics.snapshot()
}

func (h *Handler) IsConnected() bool { return h.connected.Load() }

func (h *Handler) IsRunning() bool { return h.running.Load() }

// ReportMetrics logs the current snapshot
func (h *Handler) ReportMetrics() {
	m := h.Metrics()
	h.reports.Info("feed handler metrics", zap.Object("metrics", m))
}

func (h *Handler) heartbeatSnapshot() (Metrics, bool) {
	if !h.cfg.EnableLogging || !h.connected.Load() {
		return Metrics{}, false
	}
	return h.Metrics(), true
}

func (h *Handler) reportHeartbeat(m Metrics) {
	h.reports.Info("heartbeat", zap.Object("metrics", m))
}

// handleEvent runs on the transport goroutine, one event at a time
func (h *Handler) handleEvent(ev transport.Event) {
	if !h.running.Load() {
		return
	}

	switch ev.Type {
	case transport.EventOpen:
		h.connected.Store(true)
		h.logger.Info("upstream connected")
	case transport.EventClose:
		h.connected.Store(false)
		h.metrics.reconnected()
		h.logger.Warn("upstream disconnected", zap.Error(ev.Err))
	case transport.EventError:
		h.logger.Warn("transport error", zap.Error(ev.Err))
	case transport.EventMessage:
		h.handleMessage(ev.Data)
	}
}

func (h *Handler) handleMessage(data []byte) {
	gid := goroutineID()
	start := time.Now()

	ticks, err := decodeTrades(data, h.cfg.Exchange)
	if err != nil {
		if !errors.Is(err, ErrNotTrade) {
			h.metrics.messageDropped()
			h.reports.Debug("dropping message", zap.Error(err), zap.Int("bytes", len(data)))
		}
		return
	}

	h.dispatchMu.Lock()
	if h.running.Load() {
		h.dispatcher.Store(gid)
		for _, t := range ticks {
			if !h.running.Load() {
				break
			}
			h.metrics.tickReceived()
			h.process(t)
		}
		h.dispatcher.Store(0)
		h.metrics.recordLatency(float64(time.Since(start).Nanoseconds()) / float64(time.Microsecond))
	}
	h.dispatchMu.Unlock()

	if h.reportPending.CompareAndSwap(true, false) {
		h.reportFinal()
	}
}

func (h *Handler) process(t Tick) {
	h.history.Append(t)
	succeeded := h.observers.Dispatch(t, h.running.Load)
	h.metrics.tickProcessed(succeeded)
}
