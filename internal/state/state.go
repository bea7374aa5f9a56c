// Package state models an agent's mutable internal condition: mood, health,
// bounded needs and money.
package state

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Mood is an agent's current emotional state.
type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodNeutral Mood = "neutral"
	MoodSad     Mood = "sad"
	MoodAngry   Mood = "angry"
	MoodContent Mood = "content"
)

// ParseMood accepts any casing of a mood name.
func ParseMood(s string) (Mood, bool) {
	switch m := Mood(strings.ToLower(strings.TrimSpace(s))); m {
	case MoodHappy, MoodNeutral, MoodSad, MoodAngry, MoodContent:
		return m, true
	}
	return "", false
}

// Health is an agent's physical health status.
type Health string

const (
	HealthHealthy Health = "healthy"
	HealthSick    Health = "sick"
	HealthInjured Health = "injured"
)

// ParseHealth accepts any casing of a health status name.
func ParseHealth(s string) (Health, bool) {
	switch h := Health(strings.ToLower(strings.TrimSpace(s))); h {
	case HealthHealthy, HealthSick, HealthInjured:
		return h, true
	}
	return "", false
}

// Attribute names a field of Internal that effects can target.
type Attribute string

const (
	AttrEnergy      Attribute = "energy"
	AttrHunger      Attribute = "hunger"
	AttrStress      Attribute = "stress"
	AttrSocialNeed  Attribute = "social_need"
	AttrHygiene     Attribute = "hygiene"
	AttrLaundryNeed Attribute = "laundry_need"
	AttrMoney       Attribute = "money"
	AttrMood        Attribute = "mood"
	AttrHealth      Attribute = "health_status"
)

var attributeAliases = map[string]Attribute{
	"stress_level": AttrStress,
	"health":       AttrHealth,
}

// ParseAttribute resolves an attribute name, including legacy aliases.
func ParseAttribute(s string) (Attribute, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if a, ok := attributeAliases[key]; ok {
		return a, true
	}
	switch a := Attribute(key); a {
	case AttrEnergy, AttrHunger, AttrStress, AttrSocialNeed, AttrHygiene,
		AttrLaundryNeed, AttrMoney, AttrMood, AttrHealth:
		return a, true
	}
	return "", false
}

// Enumerated reports whether the attribute holds an enum rather than a number.
func (a Attribute) Enumerated() bool {
	return a == AttrMood || a == AttrHealth
}

// Needs are bounded to [MinNeed, MaxNeed]; money has no upper bound.
const (
	MinNeed = 0
	MaxNeed = 100
)

// Internal is the full mutable condition of one agent.
type Internal struct {
	Mood        Mood   `json:"mood" toml:"mood"`
	Health      Health `json:"health_status" toml:"health_status"`
	Energy      int    `json:"energy" toml:"energy"`
	Hunger      int    `json:"hunger" toml:"hunger"`             // higher is hungrier
	Stress      int    `json:"stress" toml:"stress"`
	SocialNeed  int    `json:"social_need" toml:"social_need"`   // higher wants company more
	Hygiene     int    `json:"hygiene" toml:"hygiene"`
	LaundryNeed int    `json:"laundry_need" toml:"laundry_need"`
	Money       int    `json:"money" toml:"money"`
}

// Default returns the starting condition used when a profile omits one.
func Default() Internal {
	return Internal{
		Mood:        MoodNeutral,
		Health:      HealthHealthy,
		Energy:      100,
		Hunger:      0,
		Stress:      0,
		SocialNeed:  50,
		Hygiene:     100,
		LaundryNeed: 0,
		Money:       100,
	}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize clamps every numeric field and fills empty enums.
func (s *Internal) Normalize() {
	s.Energy = Clamp(s.Energy, MinNeed, MaxNeed)
	s.Hunger = Clamp(s.Hunger, MinNeed, MaxNeed)
	s.Stress = Clamp(s.Stress, MinNeed, MaxNeed)
	s.SocialNeed = Clamp(s.SocialNeed, MinNeed, MaxNeed)
	s.Hygiene = Clamp(s.Hygiene, MinNeed, MaxNeed)
	s.LaundryNeed = Clamp(s.LaundryNeed, MinNeed, MaxNeed)
	if s.Money < 0 {
		s.Money = 0
	}
	if s.Mood == "" {
		s.Mood = MoodNeutral
	}
	if s.Health == "" {
		s.Health = HealthHealthy
	}
}

func (s *Internal) field(attr Attribute) *int {
	switch attr {
	case AttrEnergy:
		return &s.Energy
	case AttrHunger:
		return &s.Hunger
	case AttrStress:
		return &s.Stress
	case AttrSocialNeed:
		return &s.SocialNeed
	case AttrHygiene:
		return &s.Hygiene
	case AttrLaundryNeed:
		return &s.LaundryNeed
	case AttrMoney:
		return &s.Money
	}
	return nil
}

// Value returns a numeric attribute's current value.
func (s Internal) Value(attr Attribute) (int, bool) {
	p := s.field(attr)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Add applies delta to a numeric attribute, clamping the result.
// Returns false for enumerated or unknown attributes.
func (s *Internal) Add(attr Attribute, delta int) bool {
	p := s.field(attr)
	if p == nil {
		return false
	}
	if attr == AttrMoney {
		*p = max(0, *p+delta)
		return true
	}
	*p = Clamp(*p+delta, MinNeed, MaxNeed)
	return true
}

// SetEnum sets mood or health status from its name.
func (s *Internal) SetEnum(attr Attribute, value string) error {
	switch attr {
	case AttrMood:
		m, ok := ParseMood(value)
		if !ok {
			return goerr.New("invalid mood", goerr.V("value", value))
		}
		s.Mood = m
	case AttrHealth:
		h, ok := ParseHealth(value)
		if !ok {
			return goerr.New("invalid health status", goerr.V("value", value))
		}
		s.Health = h
	default:
		return goerr.New("attribute is not enumerated", goerr.V("attribute", attr))
	}
	return nil
}
