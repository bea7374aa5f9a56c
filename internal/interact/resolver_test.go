package interact_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/talgya/mini-town/internal/interact"
	"github.com/talgya/mini-town/internal/state"
	"github.com/talgya/mini-town/internal/world"
)

// lowSampler always draws the lower bound.
type lowSampler struct{}

func (lowSampler) Between(lo, _ int) int { return lo }

// highSampler always draws the upper bound.
type highSampler struct{}

func (highSampler) Between(_, hi int) int { return hi }

func newResolver(t *testing.T, rng state.Sampler) *interact.Resolver {
	t.Helper()
	m := world.NewMap()
	m.Load([]world.Location{
		{Name: "Laundry_Room", Type: world.LocationInternalPublic, Objects: []string{"WashingMachine"}},
		{Name: "Cafe", Type: world.LocationCommercial, Objects: []string{"CoffeeMachine", "CafeCounter", "Table"}, Jobs: map[string]int{"barista": 1}},
		{Name: "Supermarket", Type: world.LocationCommercial, Objects: []string{"CheckoutCounter", "Shelf_Food"}, Jobs: map[string]int{"cashier": 1}},
		{Name: "Park", Type: world.LocationOutdoor, Objects: []string{"Bench", "CoffeeMachine"}},
		{Name: "Clinic", Type: world.LocationService, Objects: []string{"ClinicDesk"}},
	}, map[string]map[string]int{"Cafe": {"Park": 2}})
	return interact.New(m, world.NewLedger(m), world.DefaultCatalog(), rng)
}

func TestUseObject(t *testing.T) {
	t.Run("washing applies cost and sampled effects", func(t *testing.T) {
		r := newResolver(t, lowSampler{})
		st := state.Default()
		st.LaundryNeed = 60
		st.Money = 20

		res := r.UseObject("alice", &st, "Laundry_Room", "WashingMachine")
		gt.Bool(t, res.OK).True()
		gt.Value(t, res.Minutes).Equal(30)
		gt.Value(t, st.Money).Equal(15)
		gt.Value(t, st.LaundryNeed).Equal(0)
		gt.Value(t, st.Energy).Equal(95)
	})

	t.Run("laundry precondition blocks clean agents", func(t *testing.T) {
		r := newResolver(t, lowSampler{})
		st := state.Default()
		st.LaundryNeed = 20
		before := st

		res := r.UseObject("alice", &st, "Laundry_Room", "WashingMachine")
		gt.Value(t, res).Equal(interact.Result{OK: false, Minutes: 1, Detail: "precondition not met"})
		gt.Value(t, st).Equal(before)
	})

	t.Run("insufficient funds leaves state unchanged", func(t *testing.T) {
		r := newResolver(t, highSampler{})
		st := state.Default()
		st.Money = 99
		before := st

		res := r.UseObject("alice", &st, "Clinic", "ClinicDesk")
		gt.Bool(t, res.OK).False()
		gt.Value(t, res.Minutes).Equal(1)
		gt.Value(t, st).Equal(before)
	})

	t.Run("enum effects are set directly", func(t *testing.T) {
		r := newResolver(t, highSampler{})
		st := state.Default()
		st.Health = state.HealthSick
		st.Stress = 50
		st.Money = 100

		res := r.UseObject("alice", &st, "Clinic", "ClinicDesk")
		gt.Bool(t, res.OK).True()
		gt.Value(t, st.Health).Equal(state.HealthHealthy)
		gt.Value(t, st.Stress).Equal(45)
		gt.Value(t, st.Money).Equal(0)
	})

	t.Run("numeric effects clamp to the attribute range", func(t *testing.T) {
		r := newResolver(t, highSampler{})
		st := state.Default()
		st.Energy = 90

		res := r.UseObject("alice", &st, "Cafe", "CoffeeMachine")
		gt.Bool(t, res.OK).True()
		gt.Value(t, st.Energy).Equal(100)
		gt.Value(t, st.Mood).Equal(state.MoodContent)
		gt.String(t, res.Detail).Contains("coffee")
	})

	t.Run("objects must be present and allowed at the location", func(t *testing.T) {
		r := newResolver(t, lowSampler{})
		st := state.Default()
		before := st

		gt.Bool(t, r.UseObject("alice", &st, "Cafe", "WashingMachine").OK).False()
		gt.Bool(t, r.UseObject("alice", &st, "Cafe", "Table").OK).False()
		gt.Bool(t, r.UseObject("alice", &st, "Atlantis", "Bench").OK).False()
		// The park is outdoors; the coffee machine needs a commercial venue.
		gt.Bool(t, r.UseObject("alice", &st, "Park", "CoffeeMachine").OK).False()
		gt.Value(t, st).Equal(before)

		gt.Bool(t, r.UseObject("alice", &st, "Park", "Bench").OK).True()
	})
}

func TestWork(t *testing.T) {
	t.Run("pays the prorated wage and scales hourly effects", func(t *testing.T) {
		r := newResolver(t, lowSampler{})
		st := state.Default()
		st.Money = 0
		st.Stress = 10

		res := r.Work("alice", &st, "Cafe", "barista", 90)
		gt.Bool(t, res.OK).True()
		gt.Value(t, res.Minutes).Equal(90)
		// 15/60*90 = 22.5 rounds half away from zero.
		gt.Value(t, st.Money).Equal(23)
		// -8 * 1.5 = -12; 1 * 1.5 = 1.5 rounds to 2.
		gt.Value(t, st.Energy).Equal(88)
		gt.Value(t, st.Stress).Equal(12)

		a, held := r.Ledger.Assignment("alice")
		gt.Bool(t, held).True()
		gt.Value(t, a).Equal(world.Assignment{Location: "Cafe", Job: "barista"})
	})

	t.Run("a full slot fails the whole action", func(t *testing.T) {
		r := newResolver(t, lowSampler{})
		first := state.Default()
		gt.Bool(t, r.Work("alice", &first, "Cafe", "barista", 60).OK).True()

		st := state.Default()
		before := st
		res := r.Work("bob", &st, "Cafe", "barista", 60)
		gt.Value(t, res).Equal(interact.Result{OK: false, Minutes: 1, Detail: "job slot unavailable"})
		gt.Value(t, st).Equal(before)
	})

	t.Run("the resolver never releases the slot", func(t *testing.T) {
		r := newResolver(t, lowSampler{})
		st := state.Default()
		gt.Bool(t, r.Work("alice", &st, "Supermarket", "cashier", 30).OK).True()
		gt.Value(t, r.Ledger.Occupancy("Supermarket", "cashier")).Equal(1)
		r.Ledger.Release("alice")
		gt.Value(t, r.Ledger.Occupancy("Supermarket", "cashier")).Equal(0)
	})

	t.Run("unknown jobs fail", func(t *testing.T) {
		r := newResolver(t, lowSampler{})
		st := state.Default()
		gt.Bool(t, r.Work("alice", &st, "Cafe", "cashier", 60).OK).False()
		gt.Bool(t, r.Work("alice", &st, "Park", "barista", 60).OK).False()
		gt.Bool(t, r.Work("alice", &st, "Cafe", "barista", 0).OK).False()
	})
}

func TestPurchase(t *testing.T) {
	t.Run("too little money fails with state unchanged", func(t *testing.T) {
		r := newResolver(t, lowSampler{})
		st := state.Default()
		st.Money = 3
		before := st

		res := r.Purchase("alice", &st, "Supermarket", "bread", 2)
		gt.Bool(t, res.OK).False()
		gt.Value(t, res.Minutes).Equal(1)
		gt.Value(t, st.Money).Equal(3)
		gt.Value(t, st).Equal(before)
	})

	t.Run("food reduces hunger per item", func(t *testing.T) {
		r := newResolver(t, lowSampler{})
		st := state.Default()
		st.Money = 10
		st.Hunger = 40

		res := r.Purchase("alice", &st, "Supermarket", "apple", 3)
		gt.Bool(t, res.OK).True()
		gt.Value(t, res.Minutes).Equal(5)
		gt.Value(t, st.Money).Equal(4)
		gt.Value(t, st.Hunger).Equal(25)
	})

	t.Run("hunger never drops below zero", func(t *testing.T) {
		r := newResolver(t, highSampler{})
		st := state.Default()
		st.Hunger = 10

		gt.Bool(t, r.Purchase("alice", &st, "Supermarket", "bread", 2).OK).True()
		gt.Value(t, st.Hunger).Equal(0)
	})

	t.Run("items must be on sale here", func(t *testing.T) {
		r := newResolver(t, lowSampler{})
		st := state.Default()
		gt.Bool(t, r.Purchase("alice", &st, "Cafe", "apple", 1).OK).False()
		gt.Bool(t, r.Purchase("alice", &st, "Supermarket", "caviar", 1).OK).False()
		gt.Bool(t, r.Purchase("alice", &st, "Supermarket", "apple", 0).OK).False()
	})
}
