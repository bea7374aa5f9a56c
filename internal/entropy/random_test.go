package entropy_test

import (
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/talgya/mini-town/internal/entropy"
)

func TestBetween(t *testing.T) {
	t.Run("stays inside the closed range", func(t *testing.T) {
		src := entropy.New(7)
		seen := map[int]bool{}
		for range 500 {
			v := src.Between(5, 8)
			gt.Bool(t, v >= 5 && v <= 8).True()
			seen[v] = true
		}
		gt.Value(t, len(seen)).Equal(4)
	})

	t.Run("swapped bounds are tolerated", func(t *testing.T) {
		src := entropy.New(7)
		v := src.Between(-5, -10)
		gt.Bool(t, v >= -10 && v <= -5).True()
	})

	t.Run("same seed reproduces the stream", func(t *testing.T) {
		a, b := entropy.New(42), entropy.New(42)
		for range 20 {
			gt.Value(t, a.Between(0, 1000)).Equal(b.Between(0, 1000))
		}
	})

	t.Run("is safe for concurrent use", func(t *testing.T) {
		src := entropy.New(0)
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					src.Between(1, 3)
				}
			}()
		}
		wg.Wait()
	})
}
