package agents_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/state"
)

func TestRelationships(t *testing.T) {
	t.Run("values are clamped and created lazily", func(t *testing.T) {
		a := agents.NewAgent("alice", "Alice", "", "Cafe", state.Default())
		_, ok := a.Relationship("bob")
		gt.Bool(t, ok).False()

		a.UpdateRelationship("bob", 500, 500)
		rel, ok := a.Relationship("bob")
		gt.Bool(t, ok).True()
		gt.Value(t, rel).Equal(agents.Relationship{Affinity: 100, Familiarity: 100})

		a.UpdateRelationship("bob", -1000, -1000)
		rel, _ = a.Relationship("bob")
		gt.Value(t, rel).Equal(agents.Relationship{Affinity: -100, Familiarity: 0})
	})

	t.Run("updates about oneself are ignored", func(t *testing.T) {
		a := agents.NewAgent("alice", "Alice", "", "Cafe", state.Default())
		a.UpdateRelationship("alice", 10, 10)
		gt.Value(t, len(a.Relationships())).Equal(0)
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		a := agents.NewAgent("alice", "Alice", "", "Cafe", state.Default())
		var wg sync.WaitGroup
		for range 80 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.UpdateRelationship("bob", 1, 1)
			}()
		}
		wg.Wait()
		rel, _ := a.Relationship("bob")
		gt.Value(t, rel).Equal(agents.Relationship{Affinity: 80, Familiarity: 80})
	})

	t.Run("initial state is clamped", func(t *testing.T) {
		st := state.Default()
		st.Energy = 250
		st.Money = -4
		a := agents.NewAgent("alice", "Alice", "", "Cafe", st)
		gt.Value(t, a.State().Energy).Equal(100)
		gt.Value(t, a.State().Money).Equal(0)
	})
}

func TestExecuteSocial(t *testing.T) {
	t.Run("speaking to someone here builds familiarity on both sides", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		bob := tw.add(t, "bob", "Cafe")

		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindSpeak, Minutes: 2, Target: "bob", Message: "hi"})
		gt.Bool(t, out.OK).True()
		gt.Value(t, out.Minutes).Equal(2)
		gt.Value(t, out.Heard).Equal([]string{"bob"})

		ab, _ := alice.Relationship("bob")
		ba, _ := bob.Relationship("alice")
		gt.Value(t, ab.Familiarity).Equal(1)
		gt.Value(t, ba.Familiarity).Equal(1)
		gt.Value(t, alice.State().SocialNeed).Equal(45)
		gt.Value(t, bob.State().SocialNeed).Equal(45)
	})

	t.Run("speaking to someone elsewhere is talking to oneself", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		tw.add(t, "bob", "Park")

		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindSpeak, Minutes: 2, Target: "bob", Message: "hi"})
		gt.Bool(t, out.OK).True()
		gt.Array(t, out.Heard).Length(0)
		gt.Bool(t, strings.Contains(out.Detail, "themself")).True()
		_, ok := alice.Relationship("bob")
		gt.Bool(t, ok).False()
		gt.Value(t, alice.State().SocialNeed).Equal(50)
	})

	t.Run("listening needs the speaker to be present", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		tw.add(t, "bob", "Cafe")

		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindListen, Minutes: 3, Target: "bob"})
		gt.Bool(t, out.OK).True()
		_, ok := alice.Relationship("bob")
		gt.Bool(t, ok).True()
		gt.Value(t, alice.State().SocialNeed).Equal(49)

		out = tw.exec.Execute(alice, agents.Action{Kind: agents.KindListen, Minutes: 3, Target: "ghost"})
		gt.Bool(t, out.OK).False()
		gt.Value(t, out.Minutes).Equal(1)
	})

	t.Run("hanging out includes only distinct companions present", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Park")
		bob := tw.add(t, "bob", "Park")
		carol := tw.add(t, "carol", "Park")
		tw.add(t, "dave", "Cafe")

		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindHangOut, Minutes: 30, Targets: []string{"bob", "carol", "alice", "ghost", "bob", "dave"}})
		gt.Bool(t, out.OK).True()
		gt.Value(t, out.Minutes).Equal(30)
		for _, a := range []*agents.Agent{alice, bob, carol} {
			gt.Value(t, a.State().SocialNeed).Equal(35)
		}
		ab, _ := alice.Relationship("bob")
		gt.Value(t, ab).Equal(agents.Relationship{Affinity: 1, Familiarity: 3})
		ca, _ := carol.Relationship("alice")
		gt.Value(t, ca).Equal(agents.Relationship{Affinity: 1, Familiarity: 3})
		_, ok := alice.Relationship("dave")
		gt.Bool(t, ok).False()
	})

	t.Run("hanging out alone waits five minutes", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Park")
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindHangOut, Minutes: 30, Targets: []string{"bob"}})
		gt.Bool(t, out.OK).False()
		gt.Value(t, out.Minutes).Equal(5)
		gt.Value(t, alice.State()).Equal(state.Default())
	})
}

func TestExecuteMovement(t *testing.T) {
	t.Run("moving takes the shortest path time and updates location", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Apartment_1A")

		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindMoveTo, Minutes: 5, Target: "Park"})
		gt.Bool(t, out.OK).True()
		gt.Value(t, out.Minutes).Equal(7)
		gt.Value(t, out.Location).Equal("Park")
		gt.Value(t, alice.CurrentLocation()).Equal("Park")
		gt.Value(t, alice.State().Energy).Equal(97)
	})

	t.Run("moving to the current location takes one minute", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Park")
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindMoveTo, Minutes: 5, Target: "Park"})
		gt.Bool(t, out.OK).True()
		gt.Value(t, out.Minutes).Equal(1)
	})

	t.Run("moving to an unknown place fails in place", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Park")
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindMoveTo, Minutes: 5, Target: "Atlantis"})
		gt.Bool(t, out.OK).False()
		gt.Value(t, out.Minutes).Equal(1)
		gt.Value(t, alice.CurrentLocation()).Equal("Park")
	})

	t.Run("moving to an unreachable place fails in place", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		_, reachable := tw.m.FindPath("Cafe", "Island")
		gt.Bool(t, reachable).False()

		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindMoveTo, Minutes: 5, Target: "Island"})
		gt.Bool(t, out.OK).False()
		gt.Value(t, out.Minutes).Equal(1)
		gt.Value(t, alice.CurrentLocation()).Equal("Cafe")
		gt.Value(t, alice.State().Energy).Equal(state.Default().Energy)
	})

	t.Run("agents off the map cannot walk anywhere", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Bus_Stop")
		gt.Bool(t, tw.exec.Execute(alice, agents.Action{Kind: agents.KindTakeBus, Minutes: 30, Target: "Downtown"}).OK).True()
		away := alice.CurrentLocation()

		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindMoveTo, Minutes: 5, Target: "Park"})
		gt.Bool(t, out.OK).False()
		gt.Value(t, alice.CurrentLocation()).Equal(away)
	})

	t.Run("walking works on the path or in the park only", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Park", func(st *state.Internal) { st.Stress = 30 })
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindWalk, Minutes: 20, Target: "Walking_Path"})
		gt.Bool(t, out.OK).True()
		gt.Value(t, alice.State().Energy).Equal(95)
		gt.Value(t, alice.State().Stress).Equal(24)

		bob := tw.add(t, "bob", "Cafe")
		out = tw.exec.Execute(bob, agents.Action{Kind: agents.KindWalk, Minutes: 20, Target: "Walking_Path"})
		gt.Bool(t, out.OK).False()
		gt.Value(t, out.Minutes).Equal(1)
	})

	t.Run("the bus leaves only from the bus stop", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Bus_Stop")
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindTakeBus, Minutes: 20, Target: "Downtown"})
		gt.Bool(t, out.OK).True()
		gt.Value(t, alice.CurrentLocation()).Equal("In_Transit_to_Downtown")

		bob := tw.add(t, "bob", "Park")
		out = tw.exec.Execute(bob, agents.Action{Kind: agents.KindTakeBus, Minutes: 20, Target: "Downtown"})
		gt.Bool(t, out.OK).False()
		gt.Value(t, bob.CurrentLocation()).Equal("Park")
	})

	t.Run("leaving depends on method and place", func(t *testing.T) {
		tw := newTown(t)
		driver := tw.add(t, "driver", "Highway")
		out := tw.exec.Execute(driver, agents.Action{Kind: agents.KindLeaveCommunity, Minutes: 5, Target: "Drive"})
		gt.Bool(t, out.OK).True()
		gt.Value(t, driver.CurrentLocation()).Equal("Left_Community")

		rider := tw.add(t, "rider", "Bus_Stop")
		out = tw.exec.Execute(rider, agents.Action{Kind: agents.KindLeaveCommunity, Minutes: 5, Target: "Bus"})
		gt.Bool(t, out.OK).True()
		gt.Value(t, out.Minutes).Equal(20)
		gt.Value(t, out.Action.Kind).Equal(agents.KindLeaveCommunity)
		gt.Value(t, rider.CurrentLocation()).Equal("In_Transit_to_Leave_Community")

		stuck := tw.add(t, "stuck", "Bus_Stop")
		out = tw.exec.Execute(stuck, agents.Action{Kind: agents.KindLeaveCommunity, Minutes: 5, Target: "Drive"})
		gt.Bool(t, out.OK).False()
		gt.Value(t, stuck.CurrentLocation()).Equal("Bus_Stop")
	})
}

func TestExecuteHome(t *testing.T) {
	t.Run("eating at home reduces hunger", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Apartment_1A", func(st *state.Internal) { st.Hunger = 80; st.Energy = 50 })
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindEat, Minutes: 15})
		gt.Bool(t, out.OK).True()
		gt.Value(t, alice.State().Hunger).Equal(40)
		gt.Value(t, alice.State().Energy).Equal(50)
	})

	t.Run("eating at the cafe costs money", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe", func(st *state.Internal) { st.Hunger = 80; st.Money = 50 })
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindEat, Minutes: 15})
		gt.Bool(t, out.OK).True()
		gt.Value(t, alice.State().Money).Equal(40)
		gt.Value(t, alice.State().Hunger).Equal(50)
	})

	t.Run("eating at the cafe without money changes nothing", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe", func(st *state.Internal) { st.Hunger = 80; st.Money = 5 })
		before := alice.State()
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindEat, Minutes: 15})
		gt.Value(t, out.Detail).Equal("insufficient funds")
		gt.Value(t, out.Minutes).Equal(1)
		gt.Value(t, alice.State()).Equal(before)
	})

	t.Run("eating in the park is not possible", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Park")
		gt.Bool(t, tw.exec.Execute(alice, agents.Action{Kind: agents.KindEat, Minutes: 15}).OK).False()
	})

	t.Run("sleeping restores energy by the hour", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Apartment_1A", func(st *state.Internal) { st.Energy = 10; st.Stress = 60 })
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindSleep, Minutes: 480})
		gt.Bool(t, out.OK).True()
		gt.Value(t, alice.State().Energy).Equal(90)
		gt.Value(t, alice.State().Stress).Equal(12)

		bob := tw.add(t, "bob", "Cafe")
		gt.Bool(t, tw.exec.Execute(bob, agents.Action{Kind: agents.KindSleep, Minutes: 480}).OK).False()
	})

	t.Run("showering works in any apartment", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Apartment_1B", func(st *state.Internal) { st.Hygiene = 20; st.Stress = 10 })
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindShower, Minutes: 10})
		gt.Bool(t, out.OK).True()
		gt.Value(t, alice.State().Hygiene).Equal(50)
		gt.Value(t, alice.State().Stress).Equal(9)
	})

	t.Run("gardening pleases those who love it", func(t *testing.T) {
		tw := newTown(t)
		st := state.Default()
		st.Stress = 30
		alice := agents.NewAgent("alice", "Alice", "Retired, loves Gardening.", "Rooftop", st)
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindGardening, Minutes: 30})
		gt.Bool(t, out.OK).True()
		gt.Value(t, alice.State().Energy).Equal(90)
		gt.Value(t, alice.State().Stress).Equal(25)
		gt.Value(t, alice.State().Mood).Equal(state.MoodContent)

		bob := agents.NewAgent("bob", "Bob", "Accountant.", "Rooftop", st)
		tw.exec.Execute(bob, agents.Action{Kind: agents.KindGardening, Minutes: 30})
		gt.Value(t, bob.State().Stress).Equal(30)
		gt.Value(t, bob.State().Mood).Equal(state.MoodNeutral)

		carol := agents.NewAgent("carol", "Carol", "loves gardening", "Park", st)
		gt.Bool(t, tw.exec.Execute(carol, agents.Action{Kind: agents.KindGardening, Minutes: 30}).OK).False()
	})
}

func TestExecuteResolverActions(t *testing.T) {
	t.Run("work pays and holds the job slot", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe")
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindWork, Minutes: 60, Target: "barista"})
		gt.Bool(t, out.OK).True()
		gt.Value(t, out.Minutes).Equal(60)
		gt.Value(t, alice.State().Money).Equal(115)
		gt.Bool(t, tw.ledger.IsJobAvailable("Cafe", "barista")).False()
	})

	t.Run("buying deducts the price", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Supermarket")
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindBuy, Minutes: 10, Target: "bread", Qty: 2})
		gt.Bool(t, out.OK).True()
		gt.Value(t, alice.State().Money).Equal(94)
	})

	t.Run("using an object applies the catalog rule", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Cafe", func(st *state.Internal) { st.Energy = 50 })
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindUseObject, Minutes: 5, Target: "CoffeeMachine"})
		gt.Bool(t, out.OK).True()
		gt.Value(t, out.Minutes).Equal(3)
		gt.Value(t, alice.State().Energy).Equal(60)
		gt.Value(t, alice.State().Money).Equal(95)
	})

	t.Run("objects not here cannot be used", func(t *testing.T) {
		tw := newTown(t)
		alice := tw.add(t, "alice", "Park")
		before := alice.State()
		out := tw.exec.Execute(alice, agents.Action{Kind: agents.KindUseObject, Minutes: 5, Target: "CoffeeMachine"})
		gt.Bool(t, out.OK).False()
		gt.Value(t, alice.State()).Equal(before)
	})
}
