package world_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/talgya/mini-town/internal/world"
)

func TestLedger(t *testing.T) {
	t.Run("assign fills the slot up to capacity", func(t *testing.T) {
		l := world.NewLedger(newTestMap(t))
		gt.Bool(t, l.IsJobAvailable("Cafe", "barista")).True()
		gt.Bool(t, l.Assign("alice", "Cafe", "barista")).True()
		gt.Bool(t, l.IsJobAvailable("Cafe", "barista")).False()

		gt.Bool(t, l.Assign("bob", "Cafe", "barista")).False()
		_, held := l.Assignment("bob")
		gt.Bool(t, held).False()
		gt.Value(t, l.Occupancy("Cafe", "barista")).Equal(1)
	})

	t.Run("an agent holds at most one job", func(t *testing.T) {
		l := world.NewLedger(newTestMap(t))
		gt.Bool(t, l.Assign("alice", "Supermarket", "cashier")).True()
		gt.Bool(t, l.Assign("alice", "Cafe", "barista")).False()
		a, ok := l.Assignment("alice")
		gt.Bool(t, ok).True()
		gt.Value(t, a).Equal(world.Assignment{Location: "Supermarket", Job: "cashier"})
		gt.Bool(t, l.IsJobAvailable("Cafe", "barista")).True()
	})

	t.Run("undeclared jobs are never available", func(t *testing.T) {
		l := world.NewLedger(newTestMap(t))
		gt.Bool(t, l.IsJobAvailable("Park", "gardener")).False()
		gt.Bool(t, l.Assign("alice", "Park", "gardener")).False()
		gt.Bool(t, l.IsJobAvailable("Atlantis", "barista")).False()
	})

	t.Run("release frees the slot and is idempotent", func(t *testing.T) {
		l := world.NewLedger(newTestMap(t))
		gt.Bool(t, l.Assign("alice", "Cafe", "barista")).True()
		l.Release("alice")
		l.Release("alice")
		l.Release("nobody")
		gt.Bool(t, l.IsJobAvailable("Cafe", "barista")).True()
		gt.Value(t, l.Occupancy("Cafe", "barista")).Equal(0)
	})

	t.Run("available jobs lists only open slots", func(t *testing.T) {
		l := world.NewLedger(newTestMap(t))
		gt.Value(t, l.AllAvailableJobs()).Equal(map[string][]string{
			"Cafe":        {"barista"},
			"Supermarket": {"cashier"},
		})
		l.Assign("alice", "Cafe", "barista")
		l.Assign("bob", "Supermarket", "cashier")
		gt.Value(t, l.AllAvailableJobs()).Equal(map[string][]string{
			"Supermarket": {"cashier"},
		})
		l.Assign("carol", "Supermarket", "cashier")
		gt.Value(t, len(l.AllAvailableJobs())).Equal(0)
	})

	t.Run("concurrent assignment never exceeds capacity", func(t *testing.T) {
		l := world.NewLedger(newTestMap(t))
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := range 64 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Assign(fmt.Sprintf("agent-%d", i), "Supermarket", "cashier") {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		gt.Value(t, wins.Load()).Equal(int32(2))
		gt.Value(t, l.Occupancy("Supermarket", "cashier")).Equal(2)
	})
}
