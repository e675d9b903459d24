// Package kalshi is the exchange boundary: a REST client with RSA-signed
// authentication and a WebSocket ticker feed for the Kalshi trade API.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Client is the REST client for the Kalshi exchange API. It implements
// domain.ExchangeClient.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client

	// seriesTicker limits the market scan to one event series when set.
	seriesTicker string
	marketLimit  int
}

// Option configures the client.
type Option func(*Client)

// WithSeries restricts market listing to one event series.
func WithSeries(series string) Option {
	return func(c *Client) { c.seriesTicker = series }
}

// WithMarketLimit caps the number of markets fetched per cycle.
func WithMarketLimit(limit int) Option {
	return func(c *Client) { c.marketLimit = limit }
}

// NewClient creates a Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL, apiKeyID string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		marketLimit: 100,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Older keys are PKCS1.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// GetMarkets returns snapshots of the open markets the engine watches.
func (c *Client) GetMarkets(ctx context.Context) ([]domain.MarketSnapshot, error) {
	params := url.Values{}
	params.Set("status", "open")
	params.Set("limit", strconv.Itoa(c.marketLimit))
	if c.seriesTicker != "" {
		params.Set("series_ticker", c.seriesTicker)
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, "/markets?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode markets: %w", err)
	}

	now := time.Now().UTC()
	out := make([]domain.MarketSnapshot, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		if m.Status != "open" || m.YesAsk <= 0 || m.YesAsk >= 100 {
			continue
		}
		out = append(out, m.Snapshot(now))
	}
	return out, nil
}

// GetMarket returns a fresh snapshot for a single market.
func (c *Client) GetMarket(ctx context.Context, id string) (domain.MarketSnapshot, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/markets/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: get market %s: %w", id, err)
	}

	var resp struct {
		Market Market `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	if resp.Market.Status != "open" {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: market %s: %w", id, domain.ErrMarketClosed)
	}
	return resp.Market.Snapshot(time.Now().UTC()), nil
}

// SubmitOrder places a market order and reports the fill. Long positions buy
// YES contracts and short positions buy NO contracts.
func (c *Client) SubmitOrder(ctx context.Context, marketID string, direction domain.Direction, quantity int64) (domain.Fill, error) {
	side := "yes"
	if direction == domain.DirectionShort {
		side = "no"
	}
	order := Order{
		Ticker: marketID,
		Action: "buy",
		Side:   side,
		Type:   "market",
		Count:  quantity,
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/portfolio/orders", order)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("kalshi: submit order %s: %w", marketID, err)
	}

	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Fill{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}
	if resp.Order.Status == "canceled" {
		return domain.Fill{}, fmt.Errorf("kalshi: order %s: %w", marketID, domain.ErrOrderRejected)
	}
	if resp.Order.TakerFillCount == 0 {
		return domain.Fill{}, fmt.Errorf("kalshi: order %s filled nothing: %w", marketID, domain.ErrOrderRejected)
	}

	avgCents := float64(resp.Order.TakerFillCost) / float64(resp.Order.TakerFillCount)
	return domain.Fill{
		Price:    avgCents / 100,
		Quantity: resp.Order.TakerFillCount,
	}, nil
}

// GetBalance returns the account balance in dollars.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/balance", nil)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi: get balance: %w", err)
	}

	var resp BalanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi: decode balance: %w", err)
	}
	available := float64(resp.Balance) / 100
	return domain.Balance{
		Available: available,
		Equity:    available + float64(resp.Payout)/100,
	}, nil
}

// doSignedRequest builds, signs, sends, and reads an HTTP request against
// the Kalshi API.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req, method, path); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// signRequest adds the Kalshi authentication headers: an RSA-PSS-SHA256
// signature over timestamp + method + path.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured")
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	// Query strings are excluded from the signed message.
	signPath := path
	if i := strings.IndexByte(signPath, '?'); i >= 0 {
		signPath = signPath[:i]
	}
	message := ts + method + signPath

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx responses to errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("kalshi: unauthorized: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: rate limited: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusBadRequest, http.StatusConflict:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrOrderRejected, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
