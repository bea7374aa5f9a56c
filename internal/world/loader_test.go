package world_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/talgya/mini-town/internal/state"
	"github.com/talgya/mini-town/internal/world"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	gt.NoError(t, os.WriteFile(p, []byte(content), 0o644)).Required()
	return p
}

func TestLoadMapFiles(t *testing.T) {
	t.Run("skips malformed rows and keeps the rest", func(t *testing.T) {
		dir := t.TempDir()
		locs := writeFile(t, dir, "locations.json", `[
			{"name": "Cafe", "type": "commercial", "objects": ["CoffeeMachine"], "available_jobs": {"barista": 1}},
			{"name": "Park", "type": "outdoor", "tags": ["relax"]},
			{"name": 42, "type": "outdoor"},
			{"name": "Void", "type": "nothing"}
		]`)
		conns := writeFile(t, dir, "connections.json", `{
			"Cafe": {"Park": 2, "Void": 3, "Park2": "far"},
			"Park": "broken"
		}`)

		m, err := world.LoadMapFiles(locs, conns)
		gt.NoError(t, err).Required()
		gt.Value(t, m.Names()).Equal([]string{"Cafe", "Park"})
		d, ok := m.DirectTravelTime("Park", "Cafe")
		gt.Bool(t, ok).True()
		gt.Value(t, d).Equal(2)
		gt.Value(t, m.JobsAt("Cafe")).Equal(map[string]int{"barista": 1})
	})

	t.Run("a missing file is an error", func(t *testing.T) {
		dir := t.TempDir()
		conns := writeFile(t, dir, "connections.json", `{}`)
		_, err := world.LoadMapFiles(filepath.Join(dir, "missing.json"), conns)
		gt.Value(t, err).NotNil()
	})

	t.Run("a non-array locations document is an error", func(t *testing.T) {
		dir := t.TempDir()
		locs := writeFile(t, dir, "locations.json", `{"name": "Cafe"}`)
		conns := writeFile(t, dir, "connections.json", `{}`)
		_, err := world.LoadMapFiles(locs, conns)
		gt.Value(t, err).NotNil()
	})
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "objects.yaml", `
WashingMachine:
  interaction_verb: use
  cost: 5
  duration_minutes: 30
  precondition: {attribute: laundry_need, above: 20}
  state_changes:
    laundry_need: [-70, -30]
    energy: -5
CafeCounter:
  interaction_verb: work_at
  job_type: barista
  hourly_wage: 15
  max_workers: 1
  state_changes_per_hour:
    energy: [-8, -5]
    stress_level: [1, 3]
Shelf_Food:
  interaction_verb: buy_from
  duration_minutes: 5
  items_for_sale: {apple: 2, bread: 3}
Broken:
  interaction_verb: use
  state_changes:
    charisma: [1, 2]
`)

	c, err := world.LoadCatalogFile(path)
	gt.NoError(t, err).Required()
	gt.Value(t, c.Names()).Equal([]string{"CafeCounter", "Shelf_Food", "WashingMachine"})

	wm, ok := c.Get("WashingMachine")
	gt.Bool(t, ok).True()
	gt.Value(t, *wm.Cost).Equal(5)
	gt.Value(t, wm.Effects).Equal([]state.Effect{
		state.Delta(state.AttrEnergy, -5, -5),
		state.Delta(state.AttrLaundryNeed, -70, -30),
	})
	gt.Bool(t, wm.Precondition.Met(state.Internal{LaundryNeed: 21})).True()
	gt.Bool(t, wm.Precondition.Met(state.Internal{LaundryNeed: 20})).False()

	counter, _ := c.Get("CafeCounter")
	gt.Value(t, *counter.HourlyWage).Equal(15)
	gt.Value(t, counter.DurationMinutes).Equal(1)
	gt.Value(t, counter.PerHour[1].Attribute).Equal(state.AttrStress)

	shelf, _ := c.Get("Shelf_Food")
	price, ok := shelf.Price("bread")
	gt.Bool(t, ok).True()
	gt.Value(t, price).Equal(3)
	_, ok = shelf.Price("caviar")
	gt.Bool(t, ok).False()
}
