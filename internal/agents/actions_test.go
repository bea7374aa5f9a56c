package agents_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/llm"
)

func TestParseAction(t *testing.T) {
	t.Run("defaults come from the action table", func(t *testing.T) {
		for name, minutes := range map[string]int{
			"Wait": 1, "Eat": 15, "Sleep": 480, "Shower": 10, "Gardening": 30,
		} {
			act, err := agents.ParseAction(name, nil)
			gt.NoError(t, err).Required()
			gt.Value(t, act.Minutes).Equal(minutes)
		}
	})

	t.Run("names match case-insensitively", func(t *testing.T) {
		act, err := agents.ParseAction(" moveto ", map[string]any{"target_location": "Cafe"})
		gt.NoError(t, err).Required()
		gt.Value(t, act.Kind).Equal(agents.KindMoveTo)
		gt.Value(t, act.Target).Equal("Cafe")
		gt.Value(t, act.Minutes).Equal(5)
	})

	t.Run("explicit duration overrides the default", func(t *testing.T) {
		act, err := agents.ParseAction("Work", map[string]any{"job_type": "barista", "duration_minutes": float64(90)})
		gt.NoError(t, err).Required()
		gt.Value(t, act.Minutes).Equal(90)
		gt.Value(t, act.Target).Equal("barista")
	})

	t.Run("optional parameters get their defaults", func(t *testing.T) {
		walk, err := agents.ParseAction("Walk", nil)
		gt.NoError(t, err)
		gt.Value(t, walk.Target).Equal("Walking_Path")

		leave, err := agents.ParseAction("LeaveCommunity", map[string]any{})
		gt.NoError(t, err)
		gt.Value(t, leave.Target).Equal("Drive")

		buy, err := agents.ParseAction("Buy", map[string]any{"item_name": "bread"})
		gt.NoError(t, err)
		gt.Value(t, buy.Qty).Equal(1)
	})

	t.Run("loosely typed parameters are accepted", func(t *testing.T) {
		buy, err := agents.ParseAction("Buy", map[string]any{"item_name": "apple", "quantity": "3"})
		gt.NoError(t, err)
		gt.Value(t, buy.Qty).Equal(3)

		hang, err := agents.ParseAction("HangOut", map[string]any{"target_agent_ids": "bob, carol"})
		gt.NoError(t, err)
		gt.Value(t, hang.Targets).Equal([]string{"bob", "carol"})

		hang, err = agents.ParseAction("HangOut", map[string]any{"target_agent_ids": []any{"dave"}})
		gt.NoError(t, err)
		gt.Value(t, hang.Targets).Equal([]string{"dave"})
	})

	t.Run("speak without a target is allowed", func(t *testing.T) {
		act, err := agents.ParseAction("Speak", map[string]any{"message": "hello"})
		gt.NoError(t, err)
		gt.Value(t, act.Target).Equal("")
		gt.Value(t, act.Message).Equal("hello")
	})

	t.Run("unknown names are rejected", func(t *testing.T) {
		_, err := agents.ParseAction("Fly", nil)
		gt.Bool(t, errors.Is(err, agents.ErrUnknownAction)).True()
	})

	bad := map[string]struct {
		name   string
		params map[string]any
	}{
		"missing message":           {"Speak", nil},
		"empty target location":     {"MoveTo", map[string]any{"target_location": "  "}},
		"fractional duration":       {"Wait", map[string]any{"duration_minutes": 2.5}},
		"duration below minimum":    {"Sleep", map[string]any{"duration_minutes": float64(30)}},
		"duration above a day":      {"Wait", map[string]any{"duration_minutes": float64(agents.MaxActionMinutes + 1)}},
		"overflowing duration":      {"Wait", map[string]any{"duration_minutes": 1e13}},
		"overlong shift":            {"Work", map[string]any{"job_type": "barista", "duration_minutes": "100000"}},
		"zero quantity":             {"Buy", map[string]any{"item_name": "bread", "quantity": float64(0)}},
		"non-numeric quantity":      {"Buy", map[string]any{"item_name": "bread", "quantity": "lots"}},
		"empty companion list":      {"HangOut", map[string]any{"target_agent_ids": []any{}}},
		"non-string companion":      {"HangOut", map[string]any{"target_agent_ids": []any{42.0}}},
		"object name of wrong type": {"UseObject", map[string]any{"object_name": map[string]any{}}},
	}
	for desc, tc := range bad {
		t.Run(desc+" is a parameter error", func(t *testing.T) {
			_, err := agents.ParseAction(tc.name, tc.params)
			gt.Bool(t, errors.Is(err, agents.ErrBadParams)).True()
		})
	}
}

func TestFallback(t *testing.T) {
	t.Run("fallback is a one-minute wait", func(t *testing.T) {
		gt.Value(t, agents.Fallback()).Equal(agents.Action{Kind: agents.KindWait, Minutes: 1})
		gt.Value(t, agents.Wait(0).Minutes).Equal(1)
	})

	t.Run("decisions parse through the same table", func(t *testing.T) {
		act, err := agents.FromDecision(llm.Decision{Action: "Listen", Params: map[string]any{"target_agent_id": "bob"}})
		gt.NoError(t, err)
		gt.Value(t, act.String()).Equal("Listen(bob) 3m")
	})

	t.Run("help lists every action", func(t *testing.T) {
		gt.Array(t, agents.Help()).Length(15)
		names := agents.ActionNames()
		gt.Value(t, names[0]).Equal("Buy")
		gt.Value(t, names[len(names)-1]).Equal("Work")
	})
}
