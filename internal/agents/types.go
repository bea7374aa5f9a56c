// Package agents provides the agent entity, the closed action set, the
// decision cycle and the registry that schedules idle agents every minute.
package agents

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/talgya/mini-town/internal/state"
)

// Phase is where an agent is in its decision cycle.
type Phase uint8

const (
	PhaseIdle     Phase = iota // No current action; eligible for dispatch
	PhaseThinking              // Perceiving, retrieving memories, awaiting a decision
	PhaseActing                // Executing the chosen action
	PhaseBusy                  // Action recorded; waiting for its completion time
)

var phaseNames = [...]string{"idle", "thinking", "acting", "busy"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Relationship bounds.
const (
	MinAffinity    = -100
	MaxAffinity    = 100
	MinFamiliarity = 0
	MaxFamiliarity = 100
)

// Relationship is one agent's view of another.
type Relationship struct {
	Affinity    int `json:"affinity"`
	Familiarity int `json:"familiarity"`
}

// Agent is a resident of the town. All fields are guarded by mu, so other
// agents' actions may update relationships and needs concurrently.
type Agent struct {
	ID      string
	Name    string
	Persona string
	// Home is where the agent eats, sleeps and showers.
	Home string

	mu            sync.Mutex
	location      string
	state         state.Internal
	relationships map[string]Relationship
	phase         Phase
	action        *Action
	completesAt   time.Time
}

// NewAgent creates an idle agent at location. The state is normalized.
func NewAgent(id, name, persona, location string, st state.Internal) *Agent {
	st.Normalize()
	return &Agent{
		ID:            id,
		Name:          name,
		Persona:       persona,
		Home:          location,
		location:      location,
		state:         st,
		relationships: make(map[string]Relationship),
	}
}

// CurrentLocation implements world.Locatable.
func (a *Agent) CurrentLocation() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.location
}

func (a *Agent) setLocation(loc string) {
	a.mu.Lock()
	a.location = loc
	a.mu.Unlock()
}

// State returns a copy of the internal state.
func (a *Agent) State() state.Internal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Mutate runs fn on the agent's state and location under the agent's lock.
// fn must not touch other agents.
func (a *Agent) Mutate(fn func(st *state.Internal, location *string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.state, &a.location)
	a.state.Normalize()
}

// UpdateRelationship shifts the relationship toward other, creating it on
// first contact. Values are clamped; updates about oneself are ignored.
func (a *Agent) UpdateRelationship(other string, dAffinity, dFamiliarity int) {
	if other == a.ID || other == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rel := a.relationships[other]
	rel.Affinity = state.Clamp(rel.Affinity+dAffinity, MinAffinity, MaxAffinity)
	rel.Familiarity = state.Clamp(rel.Familiarity+dFamiliarity, MinFamiliarity, MaxFamiliarity)
	a.relationships[other] = rel
	slog.Debug("relationship updated", "agent", a.ID, "other", other,
		"affinity", rel.Affinity, "familiarity", rel.Familiarity)
}

// Relationship returns the relationship toward other, if one exists.
func (a *Agent) Relationship(other string) (Relationship, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rel, ok := a.relationships[other]
	return rel, ok
}

// Relationships returns a copy of every relationship.
func (a *Agent) Relationships() map[string]Relationship {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]Relationship, len(a.relationships))
	for k, v := range a.relationships {
		out[k] = v
	}
	return out
}

// Phase returns the current cycle phase.
func (a *Agent) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func (a *Agent) setPhase(p Phase) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()
}

// CurrentAction returns the action in progress and when it completes.
func (a *Agent) CurrentAction() (Action, time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.action == nil {
		return Action{}, time.Time{}, false
	}
	return *a.action, a.completesAt, true
}

// IsIdle reports whether the agent has no action and no cycle in flight.
func (a *Agent) IsIdle() bool {
	return a.Phase() == PhaseIdle
}

// tryBegin moves an idle agent to Thinking. It is the dispatch guard: only
// one cycle per agent can be in flight.
func (a *Agent) tryBegin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseIdle || a.action != nil {
		return false
	}
	a.phase = PhaseThinking
	return true
}

// commit records the action in progress and marks the agent Busy.
func (a *Agent) commit(act Action, completesAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.action = &act
	a.completesAt = completesAt
	a.phase = PhaseBusy
}

// finishIfDue clears a completed action. It returns the finished action so
// the caller can release anything it held.
func (a *Agent) finishIfDue(now time.Time) (Action, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseBusy || a.action == nil || now.Before(a.completesAt) {
		return Action{}, false
	}
	done := *a.action
	a.action = nil
	a.completesAt = time.Time{}
	a.phase = PhaseIdle
	return done, true
}

// View is a point-in-time copy of an agent for inspection.
type View struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name"`
	Home          string                  `json:"home"`
	Location      string                  `json:"location"`
	Phase         string                  `json:"phase"`
	State         state.Internal          `json:"state"`
	Action        string                  `json:"action,omitempty"`
	CompletesAt   *time.Time              `json:"completes_at,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Restore puts back a saved location, state and relationships. Only idle
// agents are restored.
func (a *Agent) Restore(location string, st state.Internal, rels map[string]Relationship) bool {
	st.Normalize()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseIdle || a.action != nil {
		return false
	}
	if location != "" {
		a.location = location
	}
	a.state = st
	for id, r := range rels {
		if id == "" || id == a.ID {
			continue
		}
		a.relationships[id] = Relationship{
			Affinity:    state.Clamp(r.Affinity, MinAffinity, MaxAffinity),
			Familiarity: state.Clamp(r.Familiarity, MinFamiliarity, MaxFamiliarity),
		}
	}
	return true
}

// View snapshots the agent.
func (a *Agent) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := View{
		ID:            a.ID,
		Name:          a.Name,
		Home:          a.Home,
		Location:      a.location,
		Phase:         a.phase.String(),
		State:         a.state,
		Relationships: make(map[string]Relationship, len(a.relationships)),
	}
	for k, r := range a.relationships {
		v.Relationships[k] = r
	}
	if a.action != nil {
		v.Action = a.action.String()
		t := a.completesAt
		v.CompletesAt = &t
	}
	return v
}

func sortedIDs(m map[string]*Agent) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
