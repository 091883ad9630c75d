package ws

import (
	"time"

	"github.com/segmentio/encoding/json"
	"goldex.com/internal/quotes/model"
)

const TypeGoldData = "gold_data"

// ClientMsg is the optional client -> server message.
type ClientMsg struct {
	Type    string   `json:"type"`    // "sub" | "unsub"
	Symbols []string `json:"symbols"` // e.g. ["XAUUSD","GC"]
}

// ServerMsg is the only frame the server pushes.
type ServerMsg struct {
	Type      string            `json:"type"` // "gold_data"
	Data      model.PriceRecord `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
}

func EncodeRecord(rec model.PriceRecord, at time.Time) ([]byte, error) {
	return json.Marshal(ServerMsg{Type: TypeGoldData, Data: rec, Timestamp: at.UTC()})
}
