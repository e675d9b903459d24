package domain

import (
	"fmt"
	"strings"
	"time"
)

// RiskParameters are the tunable limits the risk manager sizes and admits
// trades under. Every mutation must pass Validate before being applied.
type RiskParameters struct {
	Bankroll            float64
	KellyScalingFactor  float64 // in (0, 1]; fraction of full Kelly to bet
	MaxPositionPct      float64 // cap on a single position as fraction of bankroll
	MaxDailyLossPct     float64 // daily-loss circuit breaker threshold
	MaxOpenPositions    int
	CorrelationLimit    float64 // cap on exposure within one event group, as fraction of bankroll
	StopLossPct         float64
	TakeProfitPct       float64 // 0 disables take-profit exits
	TrailingStopEnabled bool
}

// Validate checks every field against its documented range and returns a
// combined error describing every problem found.
func (p RiskParameters) Validate() error {
	var errs []string
	if p.Bankroll <= 0 {
		errs = append(errs, "bankroll must be positive")
	}
	if p.KellyScalingFactor <= 0 || p.KellyScalingFactor > 1 {
		errs = append(errs, "kelly_scaling_factor must be in (0, 1]")
	}
	if p.MaxPositionPct <= 0 || p.MaxPositionPct > 1 {
		errs = append(errs, "max_position_pct must be in (0, 1]")
	}
	if p.MaxDailyLossPct <= 0 || p.MaxDailyLossPct > 1 {
		errs = append(errs, "max_daily_loss_pct must be in (0, 1]")
	}
	if p.MaxOpenPositions < 1 || p.MaxOpenPositions > 50 {
		errs = append(errs, "max_open_positions must be between 1 and 50")
	}
	if p.CorrelationLimit <= 0 || p.CorrelationLimit > 1 {
		errs = append(errs, "correlation_limit must be in (0, 1]")
	}
	if p.StopLossPct <= 0 || p.StopLossPct > 0.5 {
		errs = append(errs, "stop_loss_pct must be in (0, 0.5]")
	}
	if p.TakeProfitPct < 0 || p.TakeProfitPct > 1 {
		errs = append(errs, "take_profit_pct must be in [0, 1]")
	}
	if len(errs) > 0 {
		return fmt.Errorf("risk parameters: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Settings is the full versioned runtime configuration the engine reads at
// each cycle boundary: risk parameters, strategy enable flags, and the
// per-source thresholds. In-flight cycles always reference one consistent
// snapshot identified by Version.
type Settings struct {
	Version int64
	Risk    RiskParameters

	SentimentEnabled  bool
	StatArbEnabled    bool
	VolatilityEnabled bool

	SentimentThreshold float64 // minimum |score| to emit a sentiment signal
	RelevanceThreshold float64 // minimum sentiment confidence
	ArbitrageThreshold float64 // minimum |z-score| to emit a stat-arb signal
	VolatilityWindow   int     // rolling window for volatility estimates

	TradeInterval time.Duration // cycle interval
	ExpiryFloor   time.Duration // close positions when time-to-expiry drops below this
	MinQuantity   int64         // smallest tradable contract count

	UpdatedAt time.Time
}

// Validate checks the whole settings snapshot, including the embedded risk
// parameters. Invalid updates are rejected wholesale; no field is applied.
func (s Settings) Validate() error {
	var errs []string
	if err := s.Risk.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if s.SentimentThreshold < 0 || s.SentimentThreshold > 1 {
		errs = append(errs, "sentiment_threshold must be in [0, 1]")
	}
	if s.RelevanceThreshold < 0 || s.RelevanceThreshold > 1 {
		errs = append(errs, "relevance_threshold must be in [0, 1]")
	}
	if s.ArbitrageThreshold <= 0 || s.ArbitrageThreshold > 10 {
		errs = append(errs, "arbitrage_threshold must be in (0, 10]")
	}
	if s.VolatilityWindow < 5 || s.VolatilityWindow > 100 {
		errs = append(errs, "volatility_window must be between 5 and 100")
	}
	if s.TradeInterval < 10*time.Second || s.TradeInterval > time.Hour {
		errs = append(errs, "trade_interval must be between 10s and 1h")
	}
	if s.ExpiryFloor < 0 {
		errs = append(errs, "expiry_floor must not be negative")
	}
	if s.MinQuantity < 1 {
		errs = append(errs, "min_quantity must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("settings: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SettingsPatch is a partial settings update. Only non-nil fields are
// applied; the patched snapshot is then validated as a whole. The field set
// is closed: anything a caller wants to change must have a field here.
type SettingsPatch struct {
	Bankroll            *float64 `json:"bankroll,omitempty"`
	KellyScalingFactor  *float64 `json:"kelly_scaling_factor,omitempty"`
	MaxPositionPct      *float64 `json:"max_position_pct,omitempty"`
	MaxDailyLossPct     *float64 `json:"max_daily_loss_pct,omitempty"`
	MaxOpenPositions    *int     `json:"max_open_positions,omitempty"`
	CorrelationLimit    *float64 `json:"correlation_limit,omitempty"`
	StopLossPct         *float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct       *float64 `json:"take_profit_pct,omitempty"`
	TrailingStopEnabled *bool    `json:"trailing_stop_enabled,omitempty"`

	SentimentEnabled  *bool `json:"sentiment_enabled,omitempty"`
	StatArbEnabled    *bool `json:"stat_arb_enabled,omitempty"`
	VolatilityEnabled *bool `json:"volatility_enabled,omitempty"`

	SentimentThreshold *float64 `json:"sentiment_threshold,omitempty"`
	RelevanceThreshold *float64 `json:"relevance_threshold,omitempty"`
	ArbitrageThreshold *float64 `json:"arbitrage_threshold,omitempty"`
	VolatilityWindow   *int     `json:"volatility_window,omitempty"`

	TradeIntervalSeconds *int   `json:"trade_interval_seconds,omitempty"`
	ExpiryFloorSeconds   *int   `json:"expiry_floor_seconds,omitempty"`
	MinQuantity          *int64 `json:"min_quantity,omitempty"`
}

// Fields returns the names of the fields the patch would change, for the
// settings_changed event.
func (p SettingsPatch) Fields() []string {
	var out []string
	add := func(name string, set bool) {
		if set {
			out = append(out, name)
		}
	}
	add("bankroll", p.Bankroll != nil)
	add("kelly_scaling_factor", p.KellyScalingFactor != nil)
	add("max_position_pct", p.MaxPositionPct != nil)
	add("max_daily_loss_pct", p.MaxDailyLossPct != nil)
	add("max_open_positions", p.MaxOpenPositions != nil)
	add("correlation_limit", p.CorrelationLimit != nil)
	add("stop_loss_pct", p.StopLossPct != nil)
	add("take_profit_pct", p.TakeProfitPct != nil)
	add("trailing_stop_enabled", p.TrailingStopEnabled != nil)
	add("sentiment_enabled", p.SentimentEnabled != nil)
	add("stat_arb_enabled", p.StatArbEnabled != nil)
	add("volatility_enabled", p.VolatilityEnabled != nil)
	add("sentiment_threshold", p.SentimentThreshold != nil)
	add("relevance_threshold", p.RelevanceThreshold != nil)
	add("arbitrage_threshold", p.ArbitrageThreshold != nil)
	add("volatility_window", p.VolatilityWindow != nil)
	add("trade_interval_seconds", p.TradeIntervalSeconds != nil)
	add("expiry_floor_seconds", p.ExpiryFloorSeconds != nil)
	add("min_quantity", p.MinQuantity != nil)
	return out
}

// Apply returns a copy of s with the patch's non-nil fields applied. The
// result is not validated; callers validate wholesale before adopting it.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Bankroll != nil {
		s.Risk.Bankroll = *p.Bankroll
	}
	if p.KellyScalingFactor != nil {
		s.Risk.KellyScalingFactor = *p.KellyScalingFactor
	}
	if p.MaxPositionPct != nil {
		s.Risk.MaxPositionPct = *p.MaxPositionPct
	}
	if p.MaxDailyLossPct != nil {
		s.Risk.MaxDailyLossPct = *p.MaxDailyLossPct
	}
	if p.MaxOpenPositions != nil {
		s.Risk.MaxOpenPositions = *p.MaxOpenPositions
	}
	if p.CorrelationLimit != nil {
		s.Risk.CorrelationLimit = *p.CorrelationLimit
	}
	if p.StopLossPct != nil {
		s.Risk.StopLossPct = *p.StopLossPct
	}
	if p.TakeProfitPct != nil {
		s.Risk.TakeProfitPct = *p.TakeProfitPct
	}
	if p.TrailingStopEnabled != nil {
		s.Risk.TrailingStopEnabled = *p.TrailingStopEnabled
	}
	if p.SentimentEnabled != nil {
		s.SentimentEnabled = *p.SentimentEnabled
	}
	if p.StatArbEnabled != nil {
		s.StatArbEnabled = *p.StatArbEnabled
	}
	if p.VolatilityEnabled != nil {
		s.VolatilityEnabled = *p.VolatilityEnabled
	}
	if p.SentimentThreshold != nil {
		s.SentimentThreshold = *p.SentimentThreshold
	}
	if p.RelevanceThreshold != nil {
		s.RelevanceThreshold = *p.RelevanceThreshold
	}
	if p.ArbitrageThreshold != nil {
		s.ArbitrageThreshold = *p.ArbitrageThreshold
	}
	if p.VolatilityWindow != nil {
		s.VolatilityWindow = *p.VolatilityWindow
	}
	if p.TradeIntervalSeconds != nil {
		s.TradeInterval = time.Duration(*p.TradeIntervalSeconds) * time.Second
	}
	if p.ExpiryFloorSeconds != nil {
		s.ExpiryFloor = time.Duration(*p.ExpiryFloorSeconds) * time.Second
	}
	if p.MinQuantity != nil {
		s.MinQuantity = *p.MinQuantity
	}
	return s
}

// Decision is the risk manager's verdict on one trade candidate.
type Decision struct {
	Execute  bool
	Quantity int64
	Reason   string // reject reason code when Execute is false
}

// Reject reason codes.
const (
	RejectMaxPositions     = "max_positions"
	RejectDailyLossBreaker = "daily_loss_breaker"
	RejectCorrelationLimit = "correlation_limit"
	RejectNoEdge           = "no_edge"
	RejectBelowMinimum     = "below_minimum_size"
)
