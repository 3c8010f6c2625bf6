package models

import "time"

// MarketDirection is the directional classification supplied by the market analyzer.
type MarketDirection string

const (
	// Bullish expects the underlying to rise
	Bullish MarketDirection = "bullish"
	// Bearish expects the underlying to fall
	Bearish MarketDirection = "bearish"
	// Neutral expects the underlying to stay range bound
	Neutral MarketDirection = "neutral"
)

// Valid returns true if the MarketDirection is one of the defined constants
func (d MarketDirection) Valid() bool {
	switch d {
	case Bullish, Bearish, Neutral:
		return true
	default:
		return false
	}
}

// MarketSnapshot is everything the engine needs to analyze one symbol.
// It is produced once per symbol by a data provider and never mutated.
type MarketSnapshot struct {
	Chain      OptionChain     `json:"chain" yaml:"chain"`
	IVHistory  []float64       `json:"iv_history,omitempty" yaml:"iv_history,omitempty"`
	Direction  MarketDirection `json:"direction" yaml:"direction"`
	Confidence float64         `json:"confidence" yaml:"confidence"`
	LotSize    int             `json:"lot_size,omitempty" yaml:"lot_size,omitempty"`
}

// IVReading represents a single implied volatility reading for a symbol on a specific date
type IVReading struct {
	Symbol    string    `json:"symbol"`
	Date      time.Time `json:"date"`
	IV        float64   `json:"iv"`        // Implied volatility as decimal (0.20 = 20%)
	Timestamp time.Time `json:"timestamp"` // When this reading was recorded
}
