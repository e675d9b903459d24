package kalshi

import (
	"encoding/json"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Market is a market as served by the Kalshi REST API. Prices arrive in
// cents (1-99).
type Market struct {
	Ticker         string `json:"ticker"`
	EventTicker    string `json:"event_ticker"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	Status         string `json:"status"` // "open", "closed", "settled"
	YesBid         int64  `json:"yes_bid"`
	YesAsk         int64  `json:"yes_ask"`
	NoBid          int64  `json:"no_bid"`
	NoAsk          int64  `json:"no_ask"`
	LastPrice      int64  `json:"last_price"`
	Volume         int64  `json:"volume"`
	OpenInterest   int64  `json:"open_interest"`
	ExpirationTime string `json:"expiration_time"`
	CloseTime      string `json:"close_time"`
	Result         string `json:"result"`
}

// Snapshot converts the API market into the engine's market snapshot.
// Entry prices use the ask side, converted from cents to dollar
// probabilities.
func (m Market) Snapshot(now time.Time) domain.MarketSnapshot {
	expiry, _ := time.Parse(time.RFC3339, m.ExpirationTime)
	return domain.MarketSnapshot{
		ID:          m.Ticker,
		EventTicker: m.EventTicker,
		Title:       m.Title,
		Category:    m.Category,
		YesPrice:    float64(m.YesAsk) / 100,
		NoPrice:     float64(m.NoAsk) / 100,
		Volume:      m.Volume,
		Expiry:      expiry,
		FetchedAt:   now,
	}
}

// Order is the order payload for the Kalshi order endpoint.
type Order struct {
	Ticker     string `json:"ticker"`
	Action     string `json:"action"` // "buy" or "sell"
	Side       string `json:"side"`   // "yes" or "no"
	Type       string `json:"type"`   // "market" or "limit"
	Count      int64  `json:"count"`
	YesPrice   *int64 `json:"yes_price,omitempty"`
	NoPrice    *int64 `json:"no_price,omitempty"`
	BuyMaxCost *int64 `json:"buy_max_cost,omitempty"`
}

// OrderResponse is the API response after placing an order.
type OrderResponse struct {
	Order struct {
		OrderID        string `json:"order_id"`
		Ticker         string `json:"ticker"`
		Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
		Action         string `json:"action"`
		Side           string `json:"side"`
		YesPrice       int64  `json:"yes_price"`
		NoPrice        int64  `json:"no_price"`
		RemainingCount int64  `json:"remaining_count"`
		TakerFillCount int64  `json:"taker_fill_count"`
		TakerFillCost  int64  `json:"taker_fill_cost"` // in cents
	} `json:"order"`
}

// BalanceResponse is the portfolio balance payload, in cents.
type BalanceResponse struct {
	Balance int64 `json:"balance"`
	Payout  int64 `json:"payout"`
}

// ErrorResponse is a Kalshi API error payload.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSMessage is the envelope for Kalshi WebSocket messages.
type WSMessage struct {
	Type string          `json:"type"` // "ticker", "trade", etc.
	Msg  json.RawMessage `json:"msg"`
	SID  int64           `json:"sid"`
}

// WSTicker is the ticker channel payload, prices in cents.
type WSTicker struct {
	Ticker string `json:"market_ticker"`
	Price  int64  `json:"price"`
	YesBid int64  `json:"yes_bid"`
	YesAsk int64  `json:"yes_ask"`
	Volume int64  `json:"volume"`
	TS     int64  `json:"ts"` // unix seconds
}

// WSSubscribeCmd is the command sent to subscribe to WebSocket channels.
type WSSubscribeCmd struct {
	ID     int64             `json:"id"`
	Cmd    string            `json:"cmd"`
	Params WSSubscribeParams `json:"params"`
}

// WSSubscribeParams names the channels and markets to subscribe.
type WSSubscribeParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers"`
}
