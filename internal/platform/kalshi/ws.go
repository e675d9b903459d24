package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 30 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// TickerFeed streams real-time ticker prices over the Kalshi WebSocket API
// into the price cache, so strategies see fresher histories than the REST
// snapshot cadence provides.
type TickerFeed struct {
	wsURL  string
	cache  domain.PriceCache
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	subscribed []string
	cmdID      int64

	done chan struct{}
}

// NewTickerFeed creates a feed writing into the given cache.
//
// wsURL is the WebSocket endpoint, e.g.
// "wss://api.elections.kalshi.com/trade-api/ws/v2".
func NewTickerFeed(wsURL string, cache domain.PriceCache, logger *slog.Logger) *TickerFeed {
	return &TickerFeed{
		wsURL:  wsURL,
		cache:  cache,
		logger: logger.With(slog.String("component", "kalshi_feed")),
		done:   make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (f *TickerFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("kalshi/ws: feed is closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("kalshi/ws: connect: %w", err)
	}
	f.conn = conn

	f.conn.SetReadDeadline(time.Now().Add(pongWait))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go f.readLoop()
	go f.pingLoop()

	if len(f.subscribed) > 0 {
		if err := f.sendSubscribe(f.subscribed); err != nil {
			return fmt.Errorf("kalshi/ws: restore subscriptions: %w", err)
		}
	}
	return nil
}

// Subscribe starts streaming ticker updates for the given markets.
func (f *TickerFeed) Subscribe(ctx context.Context, tickers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("kalshi/ws: not connected")
	}
	if err := f.sendSubscribe(tickers); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}

	existing := make(map[string]struct{}, len(f.subscribed))
	for _, t := range f.subscribed {
		existing[t] = struct{}{}
	}
	for _, t := range tickers {
		if _, ok := existing[t]; !ok {
			f.subscribed = append(f.subscribed, t)
		}
	}
	return nil
}

// Close shuts the feed down.
func (f *TickerFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	close(f.done)

	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return f.conn.Close()
	}
	return nil
}

// sendSubscribe sends a subscribe command. Caller must hold f.mu.
func (f *TickerFeed) sendSubscribe(tickers []string) error {
	f.cmdID++
	cmd := WSSubscribeCmd{
		ID:  f.cmdID,
		Cmd: "subscribe",
		Params: WSSubscribeParams{
			Channels: []string{"ticker"},
			Tickers:  tickers,
		},
	}

	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages until disconnect, then reconnects with backoff.
func (f *TickerFeed) readLoop() {
	defer func() {
		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-f.done:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			f.logger.Warn("connection lost, reconnecting", slog.Any("error", err))
			f.reconnect()
			return
		}
		f.handleMessage(message)
	}
}

// pingLoop keeps the connection alive.
func (f *TickerFeed) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage routes a raw WebSocket message. Only ticker updates matter;
// everything else is dropped.
func (f *TickerFeed) handleMessage(raw []byte) {
	var envelope WSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	if envelope.Type != "ticker" {
		return
	}

	var tick WSTicker
	if err := json.Unmarshal(envelope.Msg, &tick); err != nil {
		return
	}
	if tick.Price <= 0 || tick.Price >= 100 {
		return
	}

	ts := time.Unix(tick.TS, 0).UTC()
	if tick.TS == 0 {
		ts = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.cache.SetPrice(ctx, tick.Ticker, float64(tick.Price)/100, ts); err != nil {
		f.logger.Warn("price cache write failed",
			slog.String("market_id", tick.Ticker), slog.Any("error", err))
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (f *TickerFeed) reconnect() {
	delay := reconnectDelay
	for {
		select {
		case <-f.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := f.Connect(ctx)
		cancel()
		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
