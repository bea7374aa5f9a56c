// Rule-based decider, used when no language model is configured for an
// agent. Needs are checked most-urgent first and the first one that applies
// picks the action.

package agents

import (
	"context"
	"sort"

	"github.com/talgya/mini-town/internal/llm"
	"github.com/talgya/mini-town/internal/state"
	"github.com/talgya/mini-town/internal/world"
)

const cafeMealCost = 25

// HeuristicDecider is a needs-driven state machine.
type HeuristicDecider struct {
	world   *world.Map
	catalog *world.Catalog
}

func NewHeuristicDecider(m *world.Map, c *world.Catalog) *HeuristicDecider {
	return &HeuristicDecider{world: m, catalog: c}
}

func decide(action string, kv ...any) llm.Decision {
	d := llm.Decision{Action: action, Params: make(map[string]any, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		d.Params[kv[i].(string)] = kv[i+1]
	}
	return d
}

func moveTo(loc string) llm.Decision {
	return decide("MoveTo", "target_location", loc)
}

// Decide never fails. Urgent needs are tried in priority order; a need
// that cannot be served where the agent is falls through to the next one.
func (h *HeuristicDecider) Decide(_ context.Context, dc *llm.DecisionContext) (llm.Decision, error) {
	home := dc.Home != "" && dc.Location == dc.Home

	for _, need := range UrgentNeeds(dc.State) {
		if d, ok := h.serve(need, dc, home); ok {
			return d, nil
		}
	}
	return h.decideDefault(dc, home), nil
}

func (h *HeuristicDecider) serve(need NeedType, dc *llm.DecisionContext, home bool) (llm.Decision, bool) {
	switch need {
	case NeedFood:
		return h.decideHunger(dc, home), true
	case NeedRest:
		if home {
			return decide("Sleep"), true
		}
		return h.goHome(dc), true
	case NeedHygiene:
		if home {
			return decide("Shower"), true
		}
		return h.goHome(dc), true
	case NeedMoney:
		return h.decideWork(dc)
	case NeedLaundry:
		return h.decideLaundry(dc)
	case NeedCompany:
		return h.decideSocial(dc), true
	case NeedCalm:
		if dc.Location == PlacePark || dc.Location == PlaceWalkingPath {
			return decide("Walk", "path_name", dc.Location), true
		}
		if h.world.IsValidLocation(PlacePark) {
			return moveTo(PlacePark), true
		}
	}
	return llm.Decision{}, false
}

func (h *HeuristicDecider) goHome(dc *llm.DecisionContext) llm.Decision {
	if dc.Home == "" || !h.world.IsValidLocation(dc.Home) {
		return decide("Wait", "duration_minutes", 10)
	}
	return moveTo(dc.Home)
}

func (h *HeuristicDecider) decideHunger(dc *llm.DecisionContext, home bool) llm.Decision {
	if home {
		return decide("Eat")
	}
	if dc.Location == PlaceCafe && dc.State.Money >= cafeMealCost {
		return decide("Eat")
	}
	return h.goHome(dc)
}

// decideWork works an open job here, or walks to the nearest place with one.
func (h *HeuristicDecider) decideWork(dc *llm.DecisionContext) (llm.Decision, bool) {
	if jobs := dc.OpenJobs[dc.Location]; len(jobs) > 0 {
		return decide("Work", "job_type", jobs[0], "duration_minutes", 120), true
	}
	best, bestCost := "", -1
	for _, loc := range sortedKeys(dc.OpenJobs) {
		p, ok := h.world.FindPath(dc.Location, loc)
		if !ok {
			continue
		}
		if bestCost < 0 || p.Minutes < bestCost {
			best, bestCost = loc, p.Minutes
		}
	}
	if best == "" {
		return llm.Decision{}, false
	}
	return moveTo(best), true
}

func (h *HeuristicDecider) decideLaundry(dc *llm.DecisionContext) (llm.Decision, bool) {
	const machine = "WashingMachine"
	if h.catalog == nil {
		return llm.Decision{}, false
	}
	if _, ok := h.catalog.Get(machine); !ok {
		return llm.Decision{}, false
	}
	for _, obj := range dc.Objects {
		if obj == machine {
			return decide("UseObject", "object_name", machine), true
		}
	}
	var candidates []string
	for _, loc := range h.world.Locations() {
		if loc.HasObject(machine) {
			candidates = append(candidates, loc.Name)
		}
	}
	sort.Strings(candidates)
	if len(candidates) == 0 {
		return llm.Decision{}, false
	}
	return moveTo(candidates[0]), true
}

func (h *HeuristicDecider) decideSocial(dc *llm.DecisionContext) llm.Decision {
	switch len(dc.Nearby) {
	case 0:
		if dc.Location != PlacePark && h.world.IsValidLocation(PlacePark) {
			return moveTo(PlacePark)
		}
		return decide("Wait", "duration_minutes", 10)
	case 1:
		n := dc.Nearby[0]
		return decide("Speak", "target_agent_id", n.ID, "message", "Hi "+n.Name+", how are you?")
	}
	ids := make([]any, len(dc.Nearby))
	for i, n := range dc.Nearby {
		ids[i] = n.ID
	}
	return decide("HangOut", "target_agent_ids", ids)
}

func (h *HeuristicDecider) decideDefault(dc *llm.DecisionContext, home bool) llm.Decision {
	if !dc.Daytime && dc.Season != "" {
		if home {
			return decide("Sleep")
		}
		return h.goHome(dc)
	}
	if dc.State.Mood == state.MoodSad || dc.State.Mood == state.MoodAngry {
		if dc.Location == PlaceRooftop {
			return decide("Gardening")
		}
	}
	return decide("Wait", "duration_minutes", 15)
}
