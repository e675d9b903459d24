package domain

// VolRegime classifies a market's current volatility relative to its own
// trailing distribution. The position manager widens stop bands in high
// regimes and tightens them in low regimes.
type VolRegime string

const (
	RegimeUnknown VolRegime = "unknown"
	RegimeLow     VolRegime = "low"
	RegimeNormal  VolRegime = "normal"
	RegimeHigh    VolRegime = "high"
)

// StopBandScale returns the multiplier applied to the configured stop-loss
// distance when evaluating exits under this regime.
func (r VolRegime) StopBandScale() float64 {
	switch r {
	case RegimeHigh:
		return 1.5
	case RegimeLow:
		return 0.75
	default:
		return 1.0
	}
}
