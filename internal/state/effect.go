package state

import (
	"fmt"
	"math"
	"sort"

	"github.com/m-mizutani/goerr/v2"
)

// EffectKind distinguishes sampled numeric deltas from literal enum sets.
type EffectKind string

const (
	EffectDelta EffectKind = "delta"
	EffectSet   EffectKind = "set"
)

// Effect is a single state change declared by catalog data.
type Effect struct {
	Attribute Attribute  `json:"attribute"`
	Kind      EffectKind `json:"kind"`
	Min       int        `json:"min,omitempty"`
	Max       int        `json:"max,omitempty"`
	Value     string     `json:"value,omitempty"`
}

// Sampler draws a uniform integer from the closed range [lo, hi].
type Sampler interface {
	Between(lo, hi int) int
}

// Delta returns a ranged delta effect.
func Delta(attr Attribute, lo, hi int) Effect {
	if lo > hi {
		lo, hi = hi, lo
	}
	return Effect{Attribute: attr, Kind: EffectDelta, Min: lo, Max: hi}
}

// Set returns a literal enum effect.
func Set(attr Attribute, value string) Effect {
	return Effect{Attribute: attr, Kind: EffectSet, Value: value}
}

func (e Effect) String() string {
	if e.Kind == EffectSet {
		return fmt.Sprintf("%s=%s", e.Attribute, e.Value)
	}
	if e.Min == e.Max {
		return fmt.Sprintf("%s%+d", e.Attribute, e.Min)
	}
	return fmt.Sprintf("%s[%d..%d]", e.Attribute, e.Min, e.Max)
}

// Validate checks the effect against the attribute table.
func (e Effect) Validate() error {
	if _, ok := ParseAttribute(string(e.Attribute)); !ok {
		return goerr.New("unknown attribute", goerr.V("attribute", e.Attribute))
	}
	switch e.Kind {
	case EffectDelta:
		if e.Attribute.Enumerated() {
			return goerr.New("delta on enumerated attribute", goerr.V("attribute", e.Attribute))
		}
		if e.Min > e.Max {
			return goerr.New("delta range inverted", goerr.V("min", e.Min), goerr.V("max", e.Max))
		}
	case EffectSet:
		if !e.Attribute.Enumerated() {
			return goerr.New("set on numeric attribute", goerr.V("attribute", e.Attribute))
		}
		probe := Internal{}
		if err := probe.SetEnum(e.Attribute, e.Value); err != nil {
			return err
		}
	default:
		return goerr.New("unknown effect kind", goerr.V("kind", e.Kind))
	}
	return nil
}

// ParseEffect builds an effect from loosely typed data: a two-element list
// is a range, a single number is a fixed delta, a string is a literal set.
func ParseEffect(name string, raw any) (Effect, error) {
	attr, ok := ParseAttribute(name)
	if !ok {
		return Effect{}, goerr.New("unknown attribute", goerr.V("attribute", name))
	}

	var e Effect
	switch v := raw.(type) {
	case string:
		e = Set(attr, v)
	case []any:
		if len(v) != 2 {
			return Effect{}, goerr.New("range must have two bounds", goerr.V("attribute", name))
		}
		lo, okLo := toInt(v[0])
		hi, okHi := toInt(v[1])
		if !okLo || !okHi {
			return Effect{}, goerr.New("range bounds must be integers", goerr.V("attribute", name))
		}
		e = Delta(attr, lo, hi)
	case []int:
		if len(v) != 2 {
			return Effect{}, goerr.New("range must have two bounds", goerr.V("attribute", name))
		}
		e = Delta(attr, v[0], v[1])
	default:
		n, ok := toInt(v)
		if !ok {
			return Effect{}, goerr.New("unsupported effect value", goerr.V("attribute", name), goerr.V("value", raw))
		}
		e = Delta(attr, n, n)
	}

	if err := e.Validate(); err != nil {
		return Effect{}, err
	}
	return e, nil
}

// ParseEffects converts an attribute→value table, sorted by attribute so
// sampling order is stable.
func ParseEffects(table map[string]any) ([]Effect, error) {
	names := make([]string, 0, len(table))
	for k := range table {
		names = append(names, k)
	}
	sort.Strings(names)

	effects := make([]Effect, 0, len(names))
	for _, n := range names {
		e, err := ParseEffect(n, table[n])
		if err != nil {
			return nil, err
		}
		effects = append(effects, e)
	}
	return effects, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// Apply applies one effect. Ranged deltas are sampled once; numeric results
// are clamped into the attribute's range.
func (s *Internal) Apply(e Effect, rng Sampler) error {
	return s.ApplyScaled(e, rng, 1)
}

// ApplyScaled samples a ranged delta once and multiplies it by factor before
// rounding. Used for per-hour rates applied over partial hours.
func (s *Internal) ApplyScaled(e Effect, rng Sampler, factor float64) error {
	switch e.Kind {
	case EffectSet:
		return s.SetEnum(e.Attribute, e.Value)
	case EffectDelta:
		delta := e.Min
		if e.Max > e.Min {
			delta = rng.Between(e.Min, e.Max)
		}
		scaled := int(math.Round(float64(delta) * factor))
		if !s.Add(e.Attribute, scaled) {
			return goerr.New("attribute is not numeric", goerr.V("attribute", e.Attribute))
		}
		return nil
	}
	return goerr.New("unknown effect kind", goerr.V("kind", e.Kind))
}
