package feed

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Tick is one normalized trade. Values are only produced by a successful
// decode of a whole upstream message and are never mutated afterwards.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
	Exchange  string  `json:"exchange"`
}

const messageTypeTrade = "trade"

var (
	// ErrNotTrade marks a well-formed message of another type (e.g. ping).
	ErrNotTrade = errors.New("not a trade message")
	// ErrMalformed marks a payload that could not be decoded or validated.
	ErrMalformed = errors.New("malformed trade message")
)

// tradeMessage mirrors the upstream batch: {"type":"trade","data":[...]}
type tradeMessage struct {
	Type string       `json:"type"`
	Data []tradeEntry `json:"data"`
}

// Pointers distinguish a missing field from a zero value.
type tradeEntry struct {
	Symbol    *string  `json:"s"`
	Price     *float64 `json:"p"`
	Volume    *float64 `json:"v"`
	Timestamp *int64   `json:"t"`
}

// decodeTrades returns every tick in payload, or an error and no ticks at all.
func decodeTrades(payload []byte, exchange string) ([]Tick, error) {
	var msg tradeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if msg.Type != messageTypeTrade {
		return nil, ErrNotTrade
	}
	if msg.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformed)
	}

	ticks := make([]Tick, 0, len(msg.Data))
	for i, entry := range msg.Data {
		tick, err := entry.toTick(exchange)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformed, i, err)
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func (e tradeEntry) toTick(exchange string) (Tick, error) {
	switch {
	case e.Symbol == nil || *e.Symbol == "":
		return Tick{}, errors.New("symbol is required")
	case e.Price == nil:
		return Tick{}, errors.New("price is required")
	case e.Volume == nil:
		return Tick{}, errors.New("volume is required")
	case e.Timestamp == nil:
		return Tick{}, errors.New("timestamp is required")
	}
	if *e.Price <= 0 {
		return Tick{}, fmt.Errorf("price must be greater than 0, got %v", *e.Price)
	}
	if *e.Volume < 0 {
		return Tick{}, fmt.Errorf("volume cannot be negative, got %v", *e.Volume)
	}
	if *e.Timestamp <= 0 {
		return Tick{}, fmt.Errorf("timestamp must be greater than 0, got %d", *e.Timestamp)
	}

	return Tick{
		Symbol:    *e.Symbol,
		Price:     *e.Price,
		Volume:    *e.Volume,
		Timestamp: *e.Timestamp,
		Exchange:  exchange,
	}, nil
}
