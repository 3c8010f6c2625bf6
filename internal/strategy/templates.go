package strategy

import (
	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/strikes"
)

func window(lo, hi float64) strikes.Constraint {
	return strikes.Constraint{MinMoneyness: lo, MaxMoneyness: hi}
}

func deltaLeg(name string, t models.OptionType, side models.Side, delta, lo, hi float64) LegSpec {
	return LegSpec{Name: name, Type: t, Side: side, Quantity: 1, Target: strikes.TargetDelta, Value: delta, Window: window(lo, hi)}
}

func moveLeg(name string, t models.OptionType, side models.Side, multiple, lo, hi float64) LegSpec {
	return LegSpec{Name: name, Type: t, Side: side, Quantity: 1, Target: strikes.TargetExpectedMove, Value: multiple, Window: window(lo, hi)}
}

func atmLeg(name string, t models.OptionType, side models.Side, qty int) LegSpec {
	return LegSpec{Name: name, Type: t, Side: side, Quantity: qty, Target: strikes.TargetATM, Window: window(0.97, 1.03)}
}

func anchoredLeg(name string, t models.OptionType, side models.Side, anchor string) LegSpec {
	return LegSpec{Name: name, Type: t, Side: side, Quantity: 1, Target: strikes.TargetMoneyness, Anchor: anchor}
}

// below requires legs[lo].Strike < legs[hi].Strike.
func below(lo, hi string) Validator {
	return func(legs Legs, _ float64) error {
		if legs[lo].Strike >= legs[hi].Strike {
			return ordering("%s strike %.2f must be below %s strike %.2f", lo, legs[lo].Strike, hi, legs[hi].Strike)
		}
		return nil
	}
}

func validateIronCondor(legs Legs, spot float64) error {
	pl, ps := legs["put_long"].Strike, legs["put_short"].Strike
	cs, cl := legs["call_short"].Strike, legs["call_long"].Strike
	if !(pl < ps && ps <= spot && spot <= cs && cs < cl) {
		return ordering("need put_long < put_short <= spot <= call_short < call_long, got %.2f < %.2f <= %.2f <= %.2f < %.2f",
			pl, ps, spot, cs, cl)
	}
	return nil
}

func validateIronButterfly(legs Legs, _ float64) error {
	pl, ps := legs["put_long"].Strike, legs["put_short"].Strike
	cs, cl := legs["call_short"].Strike, legs["call_long"].Strike
	if ps != cs {
		return mismatch("body strikes differ: put %.2f call %.2f", ps, cs)
	}
	if !(pl < ps && cs < cl) {
		return ordering("need put_long < body < call_long, got %.2f < %.2f < %.2f", pl, ps, cl)
	}
	return nil
}

func validateCallButterfly(legs Legs, _ float64) error {
	lo, mid, hi := legs["lower_call"].Strike, legs["middle_call"].Strike, legs["upper_call"].Strike
	if !(lo < mid && mid < hi) {
		return ordering("need lower < middle < upper, got %.2f < %.2f < %.2f", lo, mid, hi)
	}
	return nil
}

// pair validates a two-leg volatility position: same side, same expiry and
// either equal strikes (straddle) or put below call (strangle).
func pair(sameStrike bool) Validator {
	return func(legs Legs, _ float64) error {
		c, p := legs["call"], legs["put"]
		if c.Side != p.Side {
			return mismatch("legs must share a side, got call %s put %s", c.Side, p.Side)
		}
		if !c.Expiry.Equal(p.Expiry) {
			return mismatch("legs must share an expiry, got call %s put %s",
				c.Expiry.Format("2006-01-02"), p.Expiry.Format("2006-01-02"))
		}
		if sameStrike && c.Strike != p.Strike {
			return mismatch("straddle strikes differ: call %.2f put %.2f", c.Strike, p.Strike)
		}
		if !sameStrike && p.Strike >= c.Strike {
			return ordering("put strike %.2f must be below call strike %.2f", p.Strike, c.Strike)
		}
		return nil
	}
}

// DefaultTemplates returns the built-in strategy table.
func DefaultTemplates() []Template {
	return []Template{
		{
			Name: "bull_put_spread", Family: models.FamilyCreditVertical, Premium: Credit,
			Description: "sell a put near 30 delta, buy a further OTM put",
			Legs: []LegSpec{
				deltaLeg("short_put", models.Put, models.Short, 0.30, 0.85, 1.00),
				deltaLeg("long_put", models.Put, models.Long, 0.15, 0.75, 0.97),
			},
			Validate: below("long_put", "short_put"),
			Payoff:   verticalPayoff,
		},
		{
			Name: "bear_call_spread", Family: models.FamilyCreditVertical, Premium: Credit,
			Description: "sell a call near 30 delta, buy a further OTM call",
			Legs: []LegSpec{
				deltaLeg("short_call", models.Call, models.Short, 0.30, 1.00, 1.15),
				deltaLeg("long_call", models.Call, models.Long, 0.15, 1.03, 1.25),
			},
			Validate: below("short_call", "long_call"),
			Payoff:   verticalPayoff,
		},
		{
			Name: "bull_call_spread", Family: models.FamilyDebitVertical, Premium: Debit,
			Description: "buy a call near the money, sell an OTM call",
			Legs: []LegSpec{
				deltaLeg("long_call", models.Call, models.Long, 0.55, 0.95, 1.05),
				deltaLeg("short_call", models.Call, models.Short, 0.30, 1.00, 1.15),
			},
			Validate: below("long_call", "short_call"),
			Payoff:   verticalPayoff,
		},
		{
			Name: "bear_put_spread", Family: models.FamilyDebitVertical, Premium: Debit,
			Description: "buy a put near the money, sell an OTM put",
			Legs: []LegSpec{
				deltaLeg("long_put", models.Put, models.Long, 0.55, 0.95, 1.05),
				deltaLeg("short_put", models.Put, models.Short, 0.30, 0.85, 1.00),
			},
			Validate: below("short_put", "long_put"),
			Payoff:   verticalPayoff,
		},
		{
			Name: "iron_condor", Family: models.FamilyCondor, Premium: Credit,
			Description: "short strikes at one expected move, wings at one and a half",
			Legs: []LegSpec{
				moveLeg("put_long", models.Put, models.Long, -1.5, 0.70, 0.98),
				moveLeg("put_short", models.Put, models.Short, -1.0, 0.80, 1.00),
				moveLeg("call_short", models.Call, models.Short, 1.0, 1.00, 1.20),
				moveLeg("call_long", models.Call, models.Long, 1.5, 1.02, 1.30),
			},
			Validate: validateIronCondor,
			Payoff:   ironPayoff,
		},
		{
			Name: "iron_butterfly", Family: models.FamilyButterfly, Premium: Credit,
			Description: "short ATM straddle with wings one expected move out",
			Legs: []LegSpec{
				moveLeg("put_long", models.Put, models.Long, -1.0, 0.75, 0.99),
				anchoredLeg("put_short", models.Put, models.Short, "call_short"),
				atmLeg("call_short", models.Call, models.Short, 1),
				moveLeg("call_long", models.Call, models.Long, 1.0, 1.01, 1.25),
			},
			Validate: validateIronButterfly,
			Payoff:   ironPayoff,
		},
		{
			Name: "long_call_butterfly", Family: models.FamilyButterfly, Premium: Debit,
			Description: "buy wings one expected move out, sell two ATM calls",
			Legs: []LegSpec{
				moveLeg("lower_call", models.Call, models.Long, -1.0, 0.80, 0.99),
				atmLeg("middle_call", models.Call, models.Short, 2),
				moveLeg("upper_call", models.Call, models.Long, 1.0, 1.01, 1.20),
			},
			Validate: validateCallButterfly,
			Payoff:   scanPayoff,
		},
		{
			Name: "long_straddle", Family: models.FamilyStraddle, Premium: Debit,
			Description: "buy the ATM call and put",
			Legs: []LegSpec{
				atmLeg("call", models.Call, models.Long, 1),
				anchoredLeg("put", models.Put, models.Long, "call"),
			},
			Validate: pair(true),
			Payoff:   scanPayoff,
		},
		{
			Name: "short_straddle", Family: models.FamilyStraddle, Premium: Credit,
			Description: "sell the ATM call and put",
			Legs: []LegSpec{
				atmLeg("call", models.Call, models.Short, 1),
				anchoredLeg("put", models.Put, models.Short, "call"),
			},
			Validate: pair(true),
			Payoff:   scanPayoff,
		},
		{
			Name: "long_strangle", Family: models.FamilyStrangle, Premium: Debit,
			Description: "buy 20 delta call and put",
			Legs: []LegSpec{
				deltaLeg("call", models.Call, models.Long, 0.20, 1.00, 1.20),
				deltaLeg("put", models.Put, models.Long, 0.20, 0.80, 1.00),
			},
			Validate: pair(false),
			Payoff:   scanPayoff,
		},
		{
			Name: "short_strangle", Family: models.FamilyStrangle, Premium: Credit,
			Description: "sell 20 delta call and put",
			Legs: []LegSpec{
				deltaLeg("call", models.Call, models.Short, 0.20, 1.00, 1.20),
				deltaLeg("put", models.Put, models.Short, 0.20, 0.80, 1.00),
			},
			Validate: pair(false),
			Payoff:   scanPayoff,
		},
		{
			Name: "long_call", Family: models.FamilySingle, Premium: Debit,
			Description: "buy a 35 delta call",
			Legs:        []LegSpec{deltaLeg("call", models.Call, models.Long, 0.35, 0.95, 1.10)},
			Payoff:      scanPayoff,
		},
		{
			Name: "long_put", Family: models.FamilySingle, Premium: Debit,
			Description: "buy a 35 delta put",
			Legs:        []LegSpec{deltaLeg("put", models.Put, models.Long, 0.35, 0.90, 1.05)},
			Payoff:      scanPayoff,
		},
		{
			Name: "short_put", Family: models.FamilySingle, Premium: Credit,
			Description: "sell a 25 delta put",
			Legs:        []LegSpec{deltaLeg("put", models.Put, models.Short, 0.25, 0.85, 1.00)},
			Payoff:      scanPayoff,
		},
		{
			Name: "short_call", Family: models.FamilySingle, Premium: Credit,
			Description: "sell a 25 delta call",
			Legs:        []LegSpec{deltaLeg("call", models.Call, models.Short, 0.25, 1.00, 1.15)},
			Payoff:      scanPayoff,
		},
	}
}

// DefaultRegistry returns a registry holding DefaultTemplates.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range DefaultTemplates() {
		r.MustRegister(t)
	}
	return r
}
