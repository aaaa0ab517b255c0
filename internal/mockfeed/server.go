// Package mockfeed serves synthetic Finnhub-style trade batches over a
// websocket for local runs and end-to-end tests.
package mockfeed

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config controls the generated stream
type Config struct {
	Seed      int64
	Interval  time.Duration
	BatchSize int
	// MalformedPct is the share of batches (0-100) sent with a broken entry
	MalformedPct int
	// PingEvery sends a {"type":"ping"} after this many batches; 0 disables
	PingEvery int
	// StartPrice seeds each symbol's random walk
	StartPrice float64
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.StartPrice <= 0 {
		c.StartPrice = 100
	}
	return c
}

type directive struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

type trade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"`
}

type batch struct {
	Type string `json:"type"`
	Data []any  `json:"data"`
}

// Server is an http.Handler that upgrades every request to a trade stream.
// Only symbols the client subscribed to are streamed.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	upgrader websocket.Upgrader

	connections atomic.Int64
	sent        atomic.Int64
}

func NewServer(cfg Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg.withDefaults(),
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Sent returns how many valid trades have been written across all connections
func (s *Server) Sent() int64 { return s.sent.Load() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	n := s.connections.Add(1)
	logger := s.logger.With(zap.Int64("conn", n))
	logger.Info("client connected", zap.String("remote", r.RemoteAddr))

	sess := &session{
		cfg:        s.cfg,
		rng:        rand.New(rand.NewSource(s.cfg.Seed + n)),
		prices:     make(map[string]float64),
		subscribed: make(map[string]bool),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.readDirectives(ws, logger)
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			logger.Info("client disconnected")
			return
		case <-ticker.C:
			payload, valid := sess.next()
			if payload == nil {
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Info("write failed, closing", zap.Error(err))
				return
			}
			s.sent.Add(int64(valid))
		}
	}
}

// session is the per-connection generator state
type session struct {
	cfg Config
	rng *rand.Rand

	mu         sync.Mutex
	subscribed map[string]bool
	prices     map[string]float64
	lastTs     int64
	batches    int
}

func (s *session) readDirectives(ws *websocket.Conn, logger *zap.Logger) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var d directive
		if err := json.Unmarshal(data, &d); err != nil || d.Symbol == "" {
			logger.Debug("ignoring client frame", zap.ByteString("frame", data))
			continue
		}

		s.mu.Lock()
		switch d.Type {
		case "subscribe":
			s.subscribed[d.Symbol] = true
		case "unsubscribe":
			delete(s.subscribed, d.Symbol)
		}
		s.mu.Unlock()
		logger.Debug("directive", zap.String("type", d.Type), zap.String("symbol", d.Symbol))
	}
}

// next builds the next frame and reports how many valid trades it carries
func (s *session) next() ([]byte, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches++
	if s.cfg.PingEvery > 0 && s.batches%s.cfg.PingEvery == 0 {
		return []byte(`{"type":"ping"}`), 0
	}
	if len(s.subscribed) == 0 {
		return nil, 0
	}

	symbols := make([]string, 0, len(s.subscribed))
	for sym := range s.subscribed {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	malformed := s.rng.Intn(100) < s.cfg.MalformedPct
	data := make([]any, 0, s.cfg.BatchSize*len(symbols))
	for i := 0; i < s.cfg.BatchSize; i++ {
		for _, sym := range symbols {
			data = append(data, s.trade(sym))
		}
	}
	valid := len(data)
	if malformed {
		// missing price invalidates the whole batch
		data = append(data, map[string]any{"s": symbols[0], "v": 1, "t": s.timestamp()})
		valid = 0
	}

	payload, err := json.Marshal(batch{Type: "trade", Data: data})
	if err != nil {
		return nil, 0
	}
	return payload, valid
}

func (s *session) trade(symbol string) trade {
	price, ok := s.prices[symbol]
	if !ok {
		price = s.cfg.StartPrice
	}
	price *= 1 + (s.rng.Float64()-0.5)/100
	if price <= 0.01 {
		price = 0.01
	}
	s.prices[symbol] = price

	return trade{
		S: symbol,
		P: price,
		V: float64(1 + s.rng.Intn(500)),
		T: s.timestamp(),
	}
}

// timestamp never goes backwards within a session
func (s *session) timestamp() int64 {
	ts := time.Now().UnixMilli()
	if ts < s.lastTs {
		ts = s.lastTs
	}
	s.lastTs = ts
	return ts
}
