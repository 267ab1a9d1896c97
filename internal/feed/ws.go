package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait         = 10 * time.Second
	wsPongWait          = 60 * time.Second
	wsPingPeriod        = (wsPongWait * 9) / 10
	wsReconnectDelay    = 2 * time.Second
	wsMaxReconnectDelay = 60 * time.Second
)

// PriceTick is one push-price update from a streaming benchmark source.
type PriceTick struct {
	Asset     string
	Price     float64
	Timestamp time.Time
}

// PriceTickHandler is invoked for every tick received on the stream.
type PriceTickHandler func(PriceTick)

// PriceStreamClient is an optional push-price alternative to polling
// BenchmarkClient.LatestPrice on a ticker: some benchmark providers expose a
// WebSocket price stream, which arrives with lower latency than REST
// polling. It is not required — StartPolling alone satisfies the feed
// contract. Feed.StartStreaming attaches a client; nothing in the module
// calls it or reads a configured stream URL, so the running feed polls.
type PriceStreamClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	handlerMu sync.RWMutex
	handlers  []PriceTickHandler
}

// NewPriceStreamClient creates a client for the given WebSocket endpoint.
func NewPriceStreamClient(wsURL string) *PriceStreamClient {
	return &PriceStreamClient{wsURL: wsURL, done: make(chan struct{})}
}

// OnTick registers a handler called for every decoded price tick.
func (c *PriceStreamClient) OnTick(h PriceTickHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Run connects and reads until ctx is cancelled or Close is called,
// reconnecting after a fixed wsReconnectDelay on disconnect.
func (c *PriceStreamClient) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !c.waitBackoff(ctx) {
				return ctx.Err()
			}
			continue
		}

		c.readLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-c.done:
			return nil
		default:
		}
		if !c.waitBackoff(ctx) {
			return ctx.Err()
		}
	}
}

func (c *PriceStreamClient) waitBackoff(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wsReconnectDelay):
		return true
	}
}

func (c *PriceStreamClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed/ws: connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go c.pingLoop(conn)
	return nil
}

func (c *PriceStreamClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

type priceTickMessage struct {
	Asset     string  `json:"asset"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

func (c *PriceStreamClient) readLoop(ctx context.Context) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg priceTickMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		tick := PriceTick{Asset: msg.Asset, Price: msg.Price, Timestamp: time.Unix(msg.Timestamp, 0).UTC()}

		c.handlerMu.RLock()
		handlers := c.handlers
		c.handlerMu.RUnlock()
		for _, h := range handlers {
			h(tick)
		}
	}
}

// Close stops the client and any in-flight connection.
func (c *PriceStreamClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
}
