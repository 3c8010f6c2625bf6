package models

import (
	"math"
	"testing"
)

func bullPutLegs() []StrategyLeg {
	return []StrategyLeg{
		{Name: "short_put", Type: Put, Side: Short, Strike: 950, Quantity: 1, Premium: 50},
		{Name: "long_put", Type: Put, Side: Long, Strike: 900, Quantity: 1, Premium: 20},
	}
}

func TestExpiryPnL_BullPutSpread(t *testing.T) {
	legs := bullPutLegs()

	tests := []struct {
		name  string
		price float64
		want  float64
	}{
		{"above short strike keeps full credit", 1000, 30 * 50},
		{"at breakeven", 920, 0},
		{"below long strike loses width minus credit", 850, -(50 - 30) * 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpiryPnL(legs, 50, tt.price)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ExpiryPnL(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestExpiryPnL_DefaultsLotSize(t *testing.T) {
	legs := []StrategyLeg{{Type: Call, Side: Long, Strike: 100, Quantity: 2, Premium: 5}}
	if got := ExpiryPnL(legs, 0, 110); got != 10 {
		t.Errorf("ExpiryPnL() with zero lot size = %v, want 10", got)
	}
}

func TestStrategy_RewardToRisk(t *testing.T) {
	s := &Strategy{MaxProfit: 1500, MaxLoss: 1000}
	if got := s.RewardToRisk(); got != 1.5 {
		t.Errorf("RewardToRisk() = %v, want 1.5", got)
	}
	s.MaxLoss = Unbounded
	if got := s.RewardToRisk(); got != 0 {
		t.Errorf("RewardToRisk() with unbounded loss = %v, want 0", got)
	}
}

func TestSide_Sign(t *testing.T) {
	if Long.Sign() != 1 || Short.Sign() != -1 {
		t.Errorf("Sign() long=%v short=%v", Long.Sign(), Short.Sign())
	}
}

func TestStrategy_Leg(t *testing.T) {
	s := &Strategy{Legs: bullPutLegs()}
	leg, ok := s.Leg("long_put")
	if !ok || leg.Strike != 900 {
		t.Errorf("Leg(long_put) = %+v, %v", leg, ok)
	}
	if _, ok := s.Leg("missing"); ok {
		t.Error("expected missing leg")
	}
	if !IsUnbounded(Unbounded) || IsUnbounded(0) {
		t.Error("IsUnbounded sentinel check failed")
	}
}
