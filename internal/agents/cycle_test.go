package agents_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/llm"
	"github.com/talgya/mini-town/internal/memory"
)

type cannedCompleter string

func (c cannedCompleter) Complete(context.Context, string, string) (string, error) {
	return string(c), nil
}

func TestCycleRun(t *testing.T) {
	ctx := context.Background()

	t.Run("a valid decision is executed and recorded as busy", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Apartment_1A")
		dec := &scriptedDecider{decision: llm.Decision{Action: "MoveTo", Params: map[string]any{"target_location": "Cafe"}}}
		mem := &recordingMemory{}
		c := agents.NewCycle(tw.reg, tw.exec, dec, agents.WithMemory(mem))

		out := c.Run(ctx, alice, t0)
		gt.Bool(t, out.OK).True()
		gt.Value(t, alice.Phase()).Equal(agents.PhaseBusy)
		gt.Value(t, alice.CurrentLocation()).Equal("Cafe")

		act, until, ok := alice.CurrentAction()
		gt.Bool(t, ok).True()
		gt.Value(t, act.Kind).Equal(agents.KindMoveTo)
		gt.Value(t, act.Minutes).Equal(4)
		gt.Value(t, until).Equal(t0.Add(4 * time.Minute))

		gt.Array(t, mem.added).Length(1)
		gt.Value(t, mem.added[0].Type).Equal(memory.TypeAction)
		gt.Value(t, mem.added[0].AgentID).Equal("alice")
		gt.Bool(t, strings.Contains(mem.added[0].Content, "Alice walked from Apartment_1A to Cafe")).True()
	})

	fallbacks := map[string]*scriptedDecider{
		"unknown action names":  {decision: llm.Decision{Action: "Teleport"}},
		"malformed parameters":  {decision: llm.Decision{Action: "MoveTo"}},
		"overflowing durations": {decision: llm.Decision{Action: "Wait", Params: map[string]any{"duration_minutes": 1e13}}},
		"decider errors":        {err: errors.New("model unavailable")},
		"decider panics":        {panics: true},
	}
	for desc, dec := range fallbacks {
		t.Run(desc+" collapse to a one-minute wait", func(t *testing.T) {
			tw := newTown(t)
			alice := tw.add(t, "alice", "Cafe")
			c := agents.NewCycle(tw.reg, tw.exec, dec)

			out := c.Run(ctx, alice, t0)
			gt.Value(t, out.Action).Equal(agents.Fallback())
			gt.Value(t, out.Minutes).Equal(1)
			act, until, ok := alice.CurrentAction()
			gt.Bool(t, ok).True()
			gt.Value(t, act).Equal(agents.Fallback())
			gt.Value(t, until).Equal(t0.Add(time.Minute))
			gt.Value(t, alice.CurrentLocation()).Equal("Cafe")
		})
	}

	t.Run("prose from the model collapses to a wait", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		provider := llm.NewDecisionProvider(cannedCompleter("I will wait."))
		c := agents.NewCycle(tw.reg, tw.exec, provider)

		out := c.Run(ctx, alice, t0)
		gt.Value(t, out.Action).Equal(agents.Fallback())
		gt.Value(t, alice.Phase()).Equal(agents.PhaseBusy)
		act, until, ok := alice.CurrentAction()
		gt.Bool(t, ok).True()
		gt.Value(t, act.String()).Equal("Wait 1m")
		gt.Value(t, until).Equal(t0.Add(time.Minute))
	})

	t.Run("a missing decider collapses to a wait", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		out := agents.NewCycle(tw.reg, tw.exec, nil).Run(ctx, alice, t0)
		gt.Value(t, out.Action).Equal(agents.Fallback())
	})

	t.Run("speech is remembered by both speaker and listener", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		tw.add(t, "bob", "Cafe")
		dec := &scriptedDecider{decision: llm.Decision{Action: "Speak", Params: map[string]any{"target_agent_id": "bob", "message": "nice day"}}}
		mem := &recordingMemory{}

		agents.NewCycle(tw.reg, tw.exec, dec, agents.WithMemory(mem)).Run(ctx, alice, t0)
		gt.Array(t, mem.added).Length(2)
		gt.Value(t, mem.added[0].Type).Equal(memory.TypeDialogue)
		gt.Value(t, mem.added[0].RelatedAgentIDs).Equal([]string{"bob"})
		gt.Value(t, mem.added[1].AgentID).Equal("bob")
		gt.Value(t, mem.added[1].Content).Equal(`Alice says: "nice day"`)
		gt.Value(t, memory.HeuristicImportance(mem.added[1].Content)).Equal(6)
	})

	t.Run("per-agent deciders override the default", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		bob := tw.add(t, "bob", "Cafe")
		def := &scriptedDecider{decision: llm.Decision{Action: "Wait", Params: map[string]any{"duration_minutes": float64(7)}}}
		special := &scriptedDecider{decision: llm.Decision{Action: "Eat"}}
		c := agents.NewCycle(tw.reg, tw.exec, def, agents.WithAgentDecider("bob", special))

		gt.Value(t, c.Run(ctx, alice, t0).Minutes).Equal(7)
		gt.Value(t, c.Run(ctx, bob, t0).Action.Kind).Equal(agents.KindEat)
	})

	t.Run("observers see every committed outcome", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		var seen []agents.Outcome
		c := agents.NewCycle(tw.reg, tw.exec, &scriptedDecider{err: errors.New("x")},
			agents.WithObserver(func(_ context.Context, a *agents.Agent, out agents.Outcome, now time.Time) {
				gt.Value(t, a.ID).Equal("alice")
				gt.Value(t, now).Equal(t0)
				seen = append(seen, out)
			}))
		c.Run(ctx, alice, t0)
		gt.Array(t, seen).Length(1)
	})
}

func TestPerceive(t *testing.T) {
	t.Run("the decision context describes the surroundings", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		tw.add(t, "bob", "Cafe")
		tw.add(t, "carol", "Park")
		alice.UpdateRelationship("carol", 5, 2)
		mem := &recordingMemory{recall: []memory.Record{
			memory.NewRecord("alice", t0.Add(-time.Hour), memory.TypeObservation, "saw a cat"),
		}}
		c := agents.NewCycle(tw.reg, tw.exec, nil,
			agents.WithMemory(mem),
			agents.WithCalendar(fixedCalendar{season: "Spring", daytime: true}))

		dc := c.Perceive(context.Background(), alice, t0)
		gt.Value(t, dc.Location).Equal("Cafe")
		gt.Value(t, dc.LocationDescription).Equal("Corner cafe")
		gt.Value(t, dc.Time).Equal("Tuesday Apr 1 2025, 09:00")
		gt.Value(t, dc.Season).Equal("Spring")
		gt.Bool(t, dc.Daytime).True()
		gt.Value(t, dc.Nearby).Equal([]llm.Neighbor{{ID: "bob", Name: "Bob"}})
		gt.Value(t, dc.Objects).Equal([]string{"CoffeeMachine", "CafeCounter"})
		gt.Value(t, dc.Exits).Equal([]llm.Exit{{Name: "Apartment_1A", Minutes: 4}, {Name: "Park", Minutes: 3}, {Name: "Supermarket", Minutes: 2}})
		gt.Value(t, dc.OpenJobs).Equal(map[string][]string{"Cafe": {"barista"}, "Supermarket": {"cashier"}})
		gt.Value(t, dc.Relationships).Equal([]llm.Acquaintance{{ID: "carol", Name: "Carol", Affinity: 5, Familiarity: 2}})
		gt.Value(t, dc.Memories).Equal([]string{"Apr 1 08:00 saw a cat"})
		gt.Array(t, dc.Actions).Length(15)
		gt.Value(t, mem.queries[0]).Equal("At Cafe. Feeling neutral. With Bob.")
	})
}
