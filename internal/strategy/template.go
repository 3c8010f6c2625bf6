// Package strategy assembles validated multi-leg option strategies from
// data-described templates.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/strikes"
)

// PremiumSign is the net premium direction a template must open with.
type PremiumSign int

const (
	// Credit templates must collect premium
	Credit PremiumSign = iota
	// Debit templates must pay premium
	Debit
)

func (p PremiumSign) String() string {
	if p == Credit {
		return "credit"
	}
	return "debit"
}

// LegSpec declares one leg of a template. A leg with Anchor set is placed at
// the strike selected for the anchor leg instead of its own target.
type LegSpec struct {
	Name     string             `yaml:"name" json:"name"`
	Type     models.OptionType  `yaml:"option_type" json:"option_type"`
	Side     models.Side        `yaml:"side" json:"side"`
	Quantity int                `yaml:"quantity" json:"quantity"`
	Target   strikes.TargetType `yaml:"target" json:"target"`
	Value    float64            `yaml:"value" json:"value"`
	Window   strikes.Constraint `yaml:"window" json:"window"`
	Anchor   string             `yaml:"anchor,omitempty" json:"anchor,omitempty"`
}

// Legs is the set of assembled legs handed to validators, keyed by leg name.
type Legs map[string]models.StrategyLeg

// Validator checks a template's strike and leg invariants.
type Validator func(legs Legs, spot float64) error

// PayoffFunc returns max profit and max loss in currency. Either may be models.Unbounded.
type PayoffFunc func(legs []models.StrategyLeg, lotSize int, netPremium float64) (maxProfit, maxLoss float64)

// Template is a registered strategy shape.
type Template struct {
	Name        string
	Family      models.Family
	Description string
	Premium     PremiumSign
	Legs        []LegSpec
	Validate    Validator
	Payoff      PayoffFunc
}

// Leg returns the named leg spec.
func (t Template) Leg(name string) (LegSpec, bool) {
	for _, l := range t.Legs {
		if l.Name == name {
			return l, true
		}
	}
	return LegSpec{}, false
}

// LegOverride replaces the target value or window of one leg. Nil fields keep the template's value.
type LegOverride struct {
	Value        *float64 `yaml:"value"`
	MinMoneyness *float64 `yaml:"min_moneyness"`
	MaxMoneyness *float64 `yaml:"max_moneyness"`
}

// Registry maps strategy names to templates. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// Register adds a template.
func (r *Registry) Register(t Template) error {
	if t.Name == "" || len(t.Legs) == 0 || t.Payoff == nil {
		return fmt.Errorf("template %q: name, legs and payoff are required", t.Name)
	}
	for _, l := range t.Legs {
		if l.Anchor != "" {
			if _, ok := t.Leg(l.Anchor); !ok {
				return fmt.Errorf("template %q: leg %q anchors to unknown leg %q", t.Name, l.Name, l.Anchor)
			}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTemplate, t.Name)
	}
	r.templates[t.Name] = t
	return nil
}

// MustRegister is like Register but panics if the template is rejected.
// It is meant for built-in templates, where a rejection is a programming error.
func (r *Registry) MustRegister(t Template) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the named template.
func (r *Registry) Get(name string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return t, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for n := range r.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Override applies per-leg overrides to a registered template.
func (r *Registry) Override(name string, overrides map[string]LegOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	legs := append([]LegSpec(nil), t.Legs...)
	for legName, o := range overrides {
		idx := -1
		for i := range legs {
			if legs[i].Name == legName {
				idx = i
			}
		}
		if idx < 0 {
			return fmt.Errorf("strategy %s: no leg named %q", name, legName)
		}
		if o.Value != nil {
			legs[idx].Value = *o.Value
		}
		if o.MinMoneyness != nil {
			legs[idx].Window.MinMoneyness = *o.MinMoneyness
		}
		if o.MaxMoneyness != nil {
			legs[idx].Window.MaxMoneyness = *o.MaxMoneyness
		}
	}
	t.Legs = legs
	r.templates[name] = t
	return nil
}
