package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/mini-town/internal/llm"
	"github.com/talgya/mini-town/internal/memory"
)

// Decider chooses an agent's next action.
type Decider interface {
	Decide(ctx context.Context, dc *llm.DecisionContext) (llm.Decision, error)
}

// Memory is the part of the memory store the cycle needs.
type Memory interface {
	Add(ctx context.Context, rec memory.Record)
	Retrieve(ctx context.Context, agentID, query string, now time.Time, topK int) []memory.Record
}

// Population is the set of agents a cycle can perceive.
type Population interface {
	Directory
	AgentsAt(location string) []*Agent
}

// Calendar reports the simulated season and time of day.
type Calendar interface {
	Season() string
	IsDaytime() bool
}

// Observer is told about every committed outcome.
type Observer func(ctx context.Context, a *Agent, out Outcome, now time.Time)

// Cycle runs one perceive, retrieve, decide, execute, remember pass for an
// agent.
type Cycle struct {
	agents    Population
	exec      *Executor
	decider   Decider
	deciders  map[string]Decider
	memory    Memory
	calendar  Calendar
	topK      int
	observers []Observer
}

type CycleOption func(*Cycle)

func WithMemory(m Memory) CycleOption {
	return func(c *Cycle) { c.memory = m }
}

func WithCalendar(cal Calendar) CycleOption {
	return func(c *Cycle) { c.calendar = cal }
}

// WithTopK sets how many memories are retrieved per decision.
func WithTopK(k int) CycleOption {
	return func(c *Cycle) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithAgentDecider overrides the decider for one agent.
func WithAgentDecider(agentID string, d Decider) CycleOption {
	return func(c *Cycle) {
		if d != nil {
			c.deciders[agentID] = d
		}
	}
}

func WithObserver(o Observer) CycleOption {
	return func(c *Cycle) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

func NewCycle(agents Population, exec *Executor, decider Decider, opts ...CycleOption) *Cycle {
	c := &Cycle{
		agents:   agents,
		exec:     exec,
		decider:  decider,
		deciders: make(map[string]Decider),
		topK:     memory.DefaultTopK,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cycle) deciderFor(a *Agent) Decider {
	if d, ok := c.deciders[a.ID]; ok {
		return d
	}
	return c.decider
}

// Run executes one full cycle for a and records the resulting action as
// in progress. Any failure or panic along the way becomes a one-minute wait.
func (c *Cycle) Run(ctx context.Context, a *Agent, now time.Time) Outcome {
	out, err := c.step(ctx, a, now)
	if err != nil {
		slog.Warn("decision cycle fell back to wait", "agent", a.ID, "error", err)
		a.setPhase(PhaseActing)
		out = c.exec.Execute(a, Fallback())
	}

	c.remember(ctx, a, out, now)

	recorded := out.Action
	recorded.Minutes = out.Minutes
	a.commit(recorded, now.Add(time.Duration(out.Minutes)*time.Minute))

	slog.Info("agent acted",
		"agent", a.ID,
		"action", recorded.String(),
		"ok", out.OK,
		"detail", out.Detail,
		"location", out.Location,
	)
	for _, o := range c.observers {
		o(ctx, a, out, now)
	}
	return out
}

func (c *Cycle) step(ctx context.Context, a *Agent, now time.Time) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("decision cycle panicked", goerr.V("panic", r), goerr.V("agent", a.ID))
		}
	}()

	a.setPhase(PhaseThinking)
	dc := c.Perceive(ctx, a, now)

	d := c.deciderFor(a)
	if d == nil {
		return Outcome{}, goerr.New("no decider configured", goerr.V("agent", a.ID))
	}
	decision, err := d.Decide(ctx, dc)
	if err != nil {
		return Outcome{}, goerr.Wrap(err, "decision failed", goerr.V("agent", a.ID))
	}
	act, err := FromDecision(decision)
	if err != nil {
		return Outcome{}, err
	}
	if decision.Reasoning != "" {
		slog.Debug("agent decided", "agent", a.ID, "action", act.String(), "reasoning", decision.Reasoning)
	}

	a.setPhase(PhaseActing)
	return c.exec.Execute(a, act), nil
}

// Perceive gathers what a can see and remember right now.
func (c *Cycle) Perceive(ctx context.Context, a *Agent, now time.Time) *llm.DecisionContext {
	st := a.State()
	here := a.CurrentLocation()
	dc := &llm.DecisionContext{
		AgentID:  a.ID,
		Name:     a.Name,
		Persona:  a.Persona,
		Home:     a.Home,
		Time:     now.Format("Monday Jan 2 2006, 15:04"),
		Location: here,
		State:    st,
		Actions:  Help(),
	}
	if c.calendar != nil {
		dc.Season = c.calendar.Season()
		dc.Daytime = c.calendar.IsDaytime()
	}

	m := c.exec.Map
	if loc, ok := m.Location(here); ok {
		dc.LocationDescription = loc.Description
		dc.Objects = append([]string(nil), loc.Objects...)
	}
	exits := m.Neighbors(here)
	for _, name := range sortedKeys(exits) {
		dc.Exits = append(dc.Exits, llm.Exit{Name: name, Minutes: exits[name]})
	}
	if c.exec.Resolver != nil && c.exec.Resolver.Ledger != nil {
		dc.OpenJobs = c.exec.Resolver.Ledger.AllAvailableJobs()
	}

	var names []string
	for _, other := range c.agents.AgentsAt(here) {
		if other.ID == a.ID {
			continue
		}
		dc.Nearby = append(dc.Nearby, llm.Neighbor{ID: other.ID, Name: other.Name})
		names = append(names, other.Name)
	}

	rels := a.Relationships()
	for _, id := range sortedKeys(rels) {
		name := id
		if other, ok := c.agents.Get(id); ok {
			name = other.Name
		}
		r := rels[id]
		dc.Relationships = append(dc.Relationships, llm.Acquaintance{ID: id, Name: name, Affinity: r.Affinity, Familiarity: r.Familiarity})
	}

	if c.memory != nil {
		query := fmt.Sprintf("At %s. Feeling %s.", here, st.Mood)
		if len(names) > 0 {
			query += " With " + strings.Join(names, ", ") + "."
		}
		for _, rec := range c.memory.Retrieve(ctx, a.ID, query, now, c.topK) {
			dc.Memories = append(dc.Memories, rec.Timestamp.Format("Jan 2 15:04")+" "+rec.Content)
		}
	}
	return dc
}

// remember writes the outcome to the actor's memory and, for speech, to the
// listener's.
func (c *Cycle) remember(ctx context.Context, a *Agent, out Outcome, now time.Time) {
	if c.memory == nil {
		return
	}
	typ := memory.TypeAction
	if out.Action.Kind == KindSpeak && len(out.Heard) > 0 {
		typ = memory.TypeDialogue
	}
	content := fmt.Sprintf("%s %s at %s", a.Name, out.Detail, out.Location)
	c.memory.Add(ctx, memory.NewRecord(a.ID, now, typ, content, out.Heard...))

	for _, id := range out.Heard {
		c.memory.Add(ctx, memory.NewRecord(id, now, memory.TypeDialogue,
			fmt.Sprintf("%s says: %q", a.Name, out.Action.Message), a.ID))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
