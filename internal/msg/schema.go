package msg

import (
	"encoding/json"
	"fmt"
)

// TickMsg is the wire form of a published tick
type TickMsg struct {
	EventID   string  `json:"event_id"`
	SessionID string  `json:"session_id"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
	Exchange  string  `json:"exchange"`
}

// DecodeTick parses a consumed record into a TickMsg
func DecodeTick(rec Record) (TickMsg, error) {
	var m TickMsg
	if err := json.Unmarshal(rec.Value, &m); err != nil {
		return TickMsg{}, fmt.Errorf("failed to decode tick at %s/%d/%d: %w", rec.Topic, rec.Partition, rec.Offset, err)
	}
	if m.Symbol == "" || m.EventID == "" {
		return TickMsg{}, fmt.Errorf("incomplete tick at %s/%d/%d", rec.Topic, rec.Partition, rec.Offset)
	}
	return m, nil
}
