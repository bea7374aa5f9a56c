package agents

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/talgya/mini-town/internal/interact"
	"github.com/talgya/mini-town/internal/state"
	"github.com/talgya/mini-town/internal/world"
)

// Directory finds other agents. The registry implements it.
type Directory interface {
	Get(id string) (*Agent, bool)
}

// Outcome is what executing an action produced.
type Outcome struct {
	Action   Action `json:"action"`
	OK       bool   `json:"ok"`
	Minutes  int    `json:"minutes"`
	Detail   string `json:"detail"`
	Location string `json:"location"` // where the agent is afterwards
	// Heard lists agents that were addressed by Speak, so they can
	// remember it.
	Heard []string `json:"heard,omitempty"`
}

// Executor applies actions to agents.
type Executor struct {
	Agents   Directory
	Map      *world.Map
	Resolver *interact.Resolver
	Rand     state.Sampler
}

func (x *Executor) failed(a *Agent, act Action, minutes int, detail string) Outcome {
	slog.Warn("action failed", "agent", a.ID, "action", act.Kind.String(), "detail", detail)
	return Outcome{Action: act, Minutes: minutes, Detail: detail, Location: a.CurrentLocation()}
}

func (x *Executor) done(a *Agent, act Action, minutes int, detail string) Outcome {
	return Outcome{Action: act, OK: true, Minutes: minutes, Detail: detail, Location: a.CurrentLocation()}
}

// Execute performs act for a. It never panics on bad input; actions that
// cannot happen where the agent is collapse to a short wait.
func (x *Executor) Execute(a *Agent, act Action) Outcome {
	if act.Minutes < 1 {
		act.Minutes = act.Kind.DefaultMinutes()
	}
	switch act.Kind {
	case KindWait:
		return x.done(a, act, act.Minutes, fmt.Sprintf("waited %d minutes", act.Minutes))
	case KindSpeak:
		return x.speak(a, act)
	case KindMoveTo:
		return x.moveTo(a, act)
	case KindUseObject:
		return x.useObject(a, act)
	case KindWork:
		return x.work(a, act)
	case KindGardening:
		return x.gardening(a, act)
	case KindWalk:
		return x.walk(a, act)
	case KindListen:
		return x.listen(a, act)
	case KindHangOut:
		return x.hangOut(a, act)
	case KindEat:
		return x.eat(a, act)
	case KindSleep:
		return x.sleep(a, act)
	case KindShower:
		return x.shower(a, act)
	case KindBuy:
		return x.buy(a, act)
	case KindTakeBus:
		return x.takeBus(a, act)
	case KindLeaveCommunity:
		return x.leave(a, act)
	}
	return x.failed(a, act, 1, "unhandled action")
}

// companion returns the other agent if it exists and stands where a does.
func (x *Executor) companion(a *Agent, id string) (*Agent, bool) {
	if id == "" || id == a.ID || x.Agents == nil {
		return nil, false
	}
	other, ok := x.Agents.Get(id)
	if !ok || other.CurrentLocation() != a.CurrentLocation() {
		return nil, false
	}
	return other, true
}

func (x *Executor) speak(a *Agent, act Action) Outcome {
	other, ok := x.companion(a, act.Target)
	if !ok {
		return x.done(a, act, act.Minutes, fmt.Sprintf("said to themself: %q", act.Message))
	}

	a.UpdateRelationship(other.ID, 0, x.Rand.Between(1, 3))
	other.UpdateRelationship(a.ID, 0, x.Rand.Between(1, 3))
	relieve := func(st *state.Internal, _ *string) {
		st.Add(state.AttrSocialNeed, -x.Rand.Between(5, 15))
	}
	a.Mutate(relieve)
	other.Mutate(relieve)

	out := x.done(a, act, act.Minutes, fmt.Sprintf("said to %s: %q", other.Name, act.Message))
	out.Heard = []string{other.ID}
	return out
}

func (x *Executor) moveTo(a *Agent, act Action) Outcome {
	from := a.CurrentLocation()
	if from == act.Target {
		return x.done(a, act, 1, "already at "+act.Target)
	}
	if !x.Map.IsValidLocation(act.Target) {
		return x.failed(a, act, 1, "unknown location "+act.Target)
	}

	path, ok := x.Map.FindPath(from, act.Target)
	if !ok {
		return x.failed(a, act, 1, "no route to "+act.Target)
	}
	minutes := max(path.Minutes, 1)
	a.Mutate(func(st *state.Internal, loc *string) {
		st.Add(state.AttrEnergy, -minutes/2)
		*loc = act.Target
	})
	return x.done(a, act, minutes, fmt.Sprintf("walked from %s to %s", from, act.Target))
}

func (x *Executor) fromResult(a *Agent, act Action, res interact.Result) Outcome {
	if !res.OK {
		return x.failed(a, act, res.Minutes, res.Detail)
	}
	return x.done(a, act, res.Minutes, res.Detail)
}

func (x *Executor) useObject(a *Agent, act Action) Outcome {
	var res interact.Result
	a.Mutate(func(st *state.Internal, loc *string) {
		res = x.Resolver.UseObject(a.ID, st, *loc, act.Target)
	})
	return x.fromResult(a, act, res)
}

func (x *Executor) work(a *Agent, act Action) Outcome {
	var res interact.Result
	a.Mutate(func(st *state.Internal, loc *string) {
		res = x.Resolver.Work(a.ID, st, *loc, act.Target, act.Minutes)
	})
	return x.fromResult(a, act, res)
}

func (x *Executor) buy(a *Agent, act Action) Outcome {
	var res interact.Result
	a.Mutate(func(st *state.Internal, loc *string) {
		res = x.Resolver.Purchase(a.ID, st, *loc, act.Target, act.Qty)
	})
	return x.fromResult(a, act, res)
}

func (x *Executor) gardening(a *Agent, act Action) Outcome {
	if a.CurrentLocation() != PlaceRooftop {
		return x.failed(a, act, 1, "can only garden on the "+PlaceRooftop)
	}
	lovesIt := strings.Contains(strings.ToLower(a.Persona), "gardening")
	a.Mutate(func(st *state.Internal, _ *string) {
		st.Add(state.AttrEnergy, -act.Minutes/3)
		if lovesIt {
			st.Mood = state.MoodContent
			st.Add(state.AttrStress, -x.Rand.Between(5, 15))
		}
	})
	return x.done(a, act, act.Minutes, "tended the rooftop garden")
}

func (x *Executor) walk(a *Agent, act Action) Outcome {
	here := a.CurrentLocation()
	if here != act.Target && here != PlacePark {
		return x.failed(a, act, 1, "can only walk on "+act.Target+" or in the "+PlacePark)
	}
	a.Mutate(func(st *state.Internal, _ *string) {
		st.Add(state.AttrEnergy, -act.Minutes/4)
		st.Add(state.AttrStress, -act.Minutes/3)
	})
	return x.done(a, act, act.Minutes, "went for a walk at "+here)
}

func (x *Executor) listen(a *Agent, act Action) Outcome {
	other, ok := x.companion(a, act.Target)
	if !ok {
		return x.failed(a, act, 1, "nobody called "+act.Target+" to listen to")
	}
	a.UpdateRelationship(other.ID, 0, x.Rand.Between(0, 2))
	a.Mutate(func(st *state.Internal, _ *string) {
		st.Add(state.AttrSocialNeed, -x.Rand.Between(1, 5))
	})
	return x.done(a, act, act.Minutes, "listened to "+other.Name)
}

func (x *Executor) hangOut(a *Agent, act Action) Outcome {
	var group []*Agent
	seen := make(map[string]bool)
	for _, id := range act.Targets {
		if seen[id] {
			continue
		}
		seen[id] = true
		if other, ok := x.companion(a, id); ok {
			group = append(group, other)
		}
	}
	if len(group) == 0 {
		return x.failed(a, act, 5, "nobody here to hang out with")
	}

	social := x.Rand.Between(15, 40)
	a.Mutate(func(st *state.Internal, _ *string) {
		st.Add(state.AttrSocialNeed, -social)
		st.Add(state.AttrStress, -x.Rand.Between(5, 15))
	})
	names := make([]string, len(group))
	for i, other := range group {
		fam, aff := x.Rand.Between(3, 8), x.Rand.Between(1, 5)
		a.UpdateRelationship(other.ID, aff, fam)
		other.UpdateRelationship(a.ID, aff, fam)
		stress := x.Rand.Between(5, 15)
		other.Mutate(func(st *state.Internal, _ *string) {
			st.Add(state.AttrSocialNeed, -social)
			st.Add(state.AttrStress, -stress)
		})
		names[i] = other.Name
	}
	return x.done(a, act, act.Minutes, "hung out with "+strings.Join(names, ", "))
}

func (x *Executor) atHome(a *Agent) bool {
	here := a.CurrentLocation()
	if loc, ok := x.Map.Location(here); ok && loc.IsHome() {
		return true
	}
	return here == a.Home && here != ""
}

func (x *Executor) eat(a *Agent, act Action) Outcome {
	here := a.CurrentLocation()
	switch {
	case x.atHome(a):
		a.Mutate(func(st *state.Internal, _ *string) {
			st.Add(state.AttrHunger, -x.Rand.Between(40, 80))
			st.Add(state.AttrEnergy, x.Rand.Between(0, 10))
		})
		return x.done(a, act, act.Minutes, "ate at home")
	case here == PlaceCafe:
		cost := x.Rand.Between(10, 25)
		paid := false
		a.Mutate(func(st *state.Internal, _ *string) {
			if st.Money < cost {
				return
			}
			paid = true
			st.Money -= cost
			st.Add(state.AttrHunger, -x.Rand.Between(30, 60))
			st.Add(state.AttrEnergy, x.Rand.Between(0, 10))
		})
		if !paid {
			return x.failed(a, act, 1, "insufficient funds")
		}
		return x.done(a, act, act.Minutes, fmt.Sprintf("ate at the cafe for %d", cost))
	}
	return x.failed(a, act, 1, "nowhere to eat at "+here)
}

func (x *Executor) sleep(a *Agent, act Action) Outcome {
	if !x.atHome(a) {
		return x.failed(a, act, 1, "can only sleep at home")
	}
	hours := act.Minutes / 60
	a.Mutate(func(st *state.Internal, _ *string) {
		gain := min(state.MaxNeed-st.Energy, hours*x.Rand.Between(10, 15))
		st.Add(state.AttrEnergy, gain)
		st.Add(state.AttrStress, -act.Minutes/10)
	})
	return x.done(a, act, act.Minutes, fmt.Sprintf("slept %d hours", hours))
}

func (x *Executor) shower(a *Agent, act Action) Outcome {
	if !x.atHome(a) {
		return x.failed(a, act, 1, "can only shower at home")
	}
	a.Mutate(func(st *state.Internal, _ *string) {
		st.Add(state.AttrHygiene, x.Rand.Between(30, 70))
		st.Add(state.AttrStress, -x.Rand.Between(1, 5))
	})
	return x.done(a, act, act.Minutes, "took a shower")
}

func (x *Executor) takeBus(a *Agent, act Action) Outcome {
	if a.CurrentLocation() != PlaceBusStop {
		return x.failed(a, act, 1, "must be at the "+PlaceBusStop+" to take the bus")
	}
	dest := transitPrefix + act.Target
	a.setLocation(dest)
	return x.done(a, act, act.Minutes, "took the bus to "+act.Target)
}

func (x *Executor) leave(a *Agent, act Action) Outcome {
	here := a.CurrentLocation()
	switch {
	case strings.EqualFold(act.Target, methodDrive) && here == PlaceHighway:
		a.setLocation(PlaceLeft)
		return x.done(a, act, act.Minutes, "drove out of the community")
	case strings.EqualFold(act.Target, methodBus) && here == PlaceBusStop:
		bus := Action{Kind: KindTakeBus, Minutes: KindTakeBus.DefaultMinutes(), Target: leaveDestination}
		out := x.takeBus(a, bus)
		out.Action = act
		return out
	}
	return x.failed(a, act, 1, fmt.Sprintf("cannot leave by %s from %s", act.Target, here))
}
