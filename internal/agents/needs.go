package agents

import "github.com/talgya/mini-town/internal/state"

// NeedType names an urgent need, in the order they are evaluated.
// Lower needs dominate behavior when unmet.
type NeedType uint8

const (
	NeedNone NeedType = iota
	NeedFood
	NeedRest
	NeedHygiene
	NeedMoney
	NeedLaundry
	NeedCompany
	NeedCalm
)

var needNames = [...]string{"none", "food", "rest", "hygiene", "money", "laundry", "company", "calm"}

func (n NeedType) String() string {
	if int(n) < len(needNames) {
		return needNames[n]
	}
	return "unknown"
}

// Thresholds at which a need becomes urgent.
const (
	hungryAt    = 70
	tiredAt     = 20
	dirtyAt     = 30
	brokeBelow  = 20
	laundryAt   = 60
	laundryCost = 5
	lonelyAt    = 60
	stressedAt  = 60
)

// UrgentNeeds returns every urgent need, most urgent first.
func UrgentNeeds(st state.Internal) []NeedType {
	var out []NeedType
	if st.Hunger >= hungryAt {
		out = append(out, NeedFood)
	}
	if st.Energy <= tiredAt {
		out = append(out, NeedRest)
	}
	if st.Hygiene <= dirtyAt {
		out = append(out, NeedHygiene)
	}
	if st.Money < brokeBelow {
		out = append(out, NeedMoney)
	}
	if st.LaundryNeed >= laundryAt && st.Money >= laundryCost {
		out = append(out, NeedLaundry)
	}
	if st.SocialNeed >= lonelyAt {
		out = append(out, NeedCompany)
	}
	if st.Stress >= stressedAt {
		out = append(out, NeedCalm)
	}
	return out
}

// Priority returns the most urgent need, or NeedNone.
func Priority(st state.Internal) NeedType {
	if needs := UrgentNeeds(st); len(needs) > 0 {
		return needs[0]
	}
	return NeedNone
}
