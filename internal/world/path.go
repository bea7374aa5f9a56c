package world

import (
	"container/heap"
)

// Path is a route through the map and its total travel time.
type Path struct {
	Stops   []string `json:"stops"`
	Minutes int      `json:"minutes"`
}

// FindPath returns the cheapest route from start to end using Dijkstra's
// algorithm. Equal-cost frontier entries are popped in location-name order,
// so the chosen route is stable across runs. Returns false when either end
// is unknown or end is unreachable.
func (m *Map) FindPath(start, end string) (Path, bool) {
	if !m.IsValidLocation(start) || !m.IsValidLocation(end) {
		return Path{}, false
	}
	if start == end {
		return Path{Stops: []string{start}, Minutes: 0}, true
	}

	dist := map[string]int{start: 0}
	prev := make(map[string]string)
	done := make(map[string]bool)

	pq := &frontier{{name: start, cost: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(frontierItem)
		if done[cur.name] {
			continue
		}
		done[cur.name] = true
		if cur.name == end {
			break
		}

		for _, next := range sortedKeys(m.edges[cur.name]) {
			if done[next] {
				continue
			}
			nd := cur.cost + m.edges[cur.name][next]
			if old, seen := dist[next]; !seen || nd < old {
				dist[next] = nd
				prev[next] = cur.name
				heap.Push(pq, frontierItem{name: next, cost: nd})
			}
		}
	}

	total, ok := dist[end]
	if !ok {
		return Path{}, false
	}

	var stops []string
	for at := end; ; at = prev[at] {
		stops = append(stops, at)
		if at == start {
			break
		}
	}
	for i, j := 0, len(stops)-1; i < j; i, j = i+1, j-1 {
		stops[i], stops[j] = stops[j], stops[i]
	}
	return Path{Stops: stops, Minutes: total}, true
}

// Cost sums the edge weights along stops, or returns false if any hop is
// not a direct connection.
func (m *Map) Cost(stops []string) (int, bool) {
	total := 0
	for i := 1; i < len(stops); i++ {
		w, ok := m.edges[stops[i-1]][stops[i]]
		if !ok {
			return 0, false
		}
		total += w
	}
	return total, true
}

type frontierItem struct {
	name string
	cost int
}

type frontier []frontierItem

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].cost != f[j].cost {
		return f[i].cost < f[j].cost
	}
	return f[i].name < f[j].name
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(frontierItem)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}
