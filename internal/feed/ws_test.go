package feed

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPriceTickMessageDecode(t *testing.T) {
	raw := []byte(`{"asset":"BTC","price":65000.5,"timestamp":1700000000}`)
	var msg priceTickMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Asset != "BTC" || msg.Price != 65000.5 || msg.Timestamp != 1700000000 {
		t.Fatalf("unexpected decode: %+v", msg)
	}
	tick := PriceTick{Asset: msg.Asset, Price: msg.Price, Timestamp: time.Unix(msg.Timestamp, 0).UTC()}
	if tick.Timestamp.Unix() != 1700000000 {
		t.Fatalf("unexpected timestamp conversion: %v", tick.Timestamp)
	}
}

func TestPriceStreamClientCloseIsIdempotent(t *testing.T) {
	c := NewPriceStreamClient("wss://example.invalid/stream")
	c.Close()
	c.Close() // must not panic on double-close
}
