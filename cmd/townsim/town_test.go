package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/talgya/mini-town/internal/config"
)

const testTown = `
[simulation]
start_time = "2025-04-01T08:00:00Z"
seed = 7

[data]
locations = "locations.json"
connections = "connections.json"

[memory]
backend = "sqlite"
sqlite_path = "state/town.db"

[[agents]]
agent_id = "alice"
name = "Alice"
persona = "Alice tends the rooftop garden."
start_location = "Apartment_1A"

[[agents]]
agent_id = "bob"
name = "Bob"
start_location = "Cafe"

[agents.initial_state]
mood = "neutral"
energy = 60
hunger = 90
money = 40
`

func writeTown(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"town.toml": testTown,
		"locations.json": `[
			{"name": "Apartment_1A", "type": "residential"},
			{"name": "Cafe", "type": "commercial", "services": {"food": 5}, "available_jobs": {"barista": 1}},
			{"name": "Park", "type": "outdoor"}
		]`,
		"connections.json": `{"Apartment_1A": {"Park": 5}, "Park": {"Cafe": 4}}`,
	}
	for name, content := range files {
		gt.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600)).Required()
	}
	return filepath.Join(dir, "town.toml")
}

func TestBuildTown(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	t.Run("a town runs, saves and comes back where it stopped", func(t *testing.T) {
		path := writeTown(t)
		cfg, err := config.Load(path)
		gt.NoError(t, err).Required()

		first, err := buildTown(ctx, cfg, true)
		gt.NoError(t, err).Required()
		gt.Bool(t, first.sim.Timeline.Now().Equal(start)).True()
		gt.Value(t, first.sim.Registry.Len()).Equal(2)

		for i := 0; i < 90; i++ {
			first.sim.Timeline.Tick(ctx)
			first.sim.Registry.Wait()
		}
		gt.Value(t, first.sim.Stats().Actions > 0).Equal(true)
		gt.NoError(t, first.sim.Shutdown(ctx)).Required()
		bob := first.sim.Registry.Snapshot()[1]
		first.Close()

		saved, ok, err := func() (time.Time, bool, error) {
			again, err := buildTown(ctx, cfg, true)
			if err != nil {
				return time.Time{}, false, err
			}
			defer again.Close()
			restored, _ := again.sim.Registry.Get("bob")
			gt.Value(t, restored.CurrentLocation()).Equal(bob.Location)
			gt.Value(t, restored.State().Money).Equal(bob.State.Money)
			gt.Value(t, len(again.sim.Memory.GetAll(ctx, "alice")) > 0).Equal(true)
			return again.db.SavedTime(ctx)
		}()
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()
		gt.Bool(t, saved.Equal(start.Add(90*time.Minute))).True()

		fresh, err := buildTown(ctx, cfg, false)
		gt.NoError(t, err).Required()
		defer fresh.Close()
		gt.Bool(t, fresh.sim.Timeline.Now().Equal(start)).True()
	})

	t.Run("an unknown start location fails the build", func(t *testing.T) {
		path := writeTown(t)
		cfg, err := config.Load(path)
		gt.NoError(t, err).Required()
		cfg.Agents[0].StartLocation = "Moon"

		_, err = buildTown(ctx, cfg, true)
		gt.Error(t, err)
	})

	t.Run("the heuristic decider is shared by every rule-based agent", func(t *testing.T) {
		path := writeTown(t)
		cfg, err := config.Load(path)
		gt.NoError(t, err).Required()
		m, c, err := loadWorld(cfg)
		gt.NoError(t, err).Required()

		set := newDeciderSet(ctx, cfg, m, c)
		a, err := set.get("")
		gt.NoError(t, err).Required()
		b, err := set.get("")
		gt.NoError(t, err).Required()
		gt.Value(t, a).Equal(b)

		_, err = set.get("missing")
		gt.Error(t, err)
	})
}
