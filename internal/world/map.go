package world

import (
	"fmt"
	"log/slog"
	"sort"
)

// Map is the town's travel graph. It is populated once by Load and is
// read-only afterwards, so queries need no locking.
type Map struct {
	locations map[string]Location
	edges     map[string]map[string]int // from → to → minutes
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{
		locations: make(map[string]Location),
		edges:     make(map[string]map[string]int),
	}
}

// Load adds locations and travel connections, then makes every edge
// symmetric. Duplicate names overwrite the earlier row. Connections to
// unknown locations, self-loops and non-positive travel times are dropped.
func (m *Map) Load(locations []Location, connections map[string]map[string]int) {
	for _, loc := range locations {
		if err := loc.Validate(); err != nil {
			slog.Warn("skipping invalid location", "error", err)
			continue
		}
		if _, exists := m.locations[loc.Name]; exists {
			slog.Warn("duplicate location, overwriting", "name", loc.Name)
		}
		m.locations[loc.Name] = loc
	}

	for _, from := range sortedKeys(connections) {
		if _, ok := m.locations[from]; !ok {
			slog.Warn("dropping connections from unknown location", "from", from)
			continue
		}
		for _, to := range sortedKeys(connections[from]) {
			minutes := connections[from][to]
			switch {
			case !m.IsValidLocation(to):
				slog.Warn("dropping connection to unknown location", "from", from, "to", to)
			case from == to:
				slog.Warn("dropping self connection", "location", from)
			case minutes <= 0:
				slog.Warn("dropping non-positive travel time", "from", from, "to", to, "minutes", minutes)
			default:
				m.addEdge(from, to, minutes)
			}
		}
	}

	m.EnsureBidirectional()
	slog.Info("world map loaded", "locations", len(m.locations), "edges", m.EdgeCount())
}

func (m *Map) addEdge(from, to string, minutes int) {
	if m.edges[from] == nil {
		m.edges[from] = make(map[string]int)
	}
	m.edges[from][to] = minutes
}

// EnsureBidirectional adds the reverse of every edge that lacks one, with
// the same weight. When both directions were declared with different
// weights the shorter one wins for both.
func (m *Map) EnsureBidirectional() {
	added := 0
	for _, from := range sortedKeys(m.edges) {
		for _, to := range sortedKeys(m.edges[from]) {
			w := m.edges[from][to]
			back, ok := m.edges[to][from]
			switch {
			case !ok:
				m.addEdge(to, from, w)
				added++
			case back != w:
				slog.Warn("asymmetric travel time, keeping the shorter", "a", from, "b", to, "ab", w, "ba", back)
				short := min(w, back)
				m.edges[from][to] = short
				m.edges[to][from] = short
			}
		}
	}
	if added > 0 {
		slog.Debug("added reverse connections", "count", added)
	}
}

// Location returns the named location.
func (m *Map) Location(name string) (Location, bool) {
	loc, ok := m.locations[name]
	return loc, ok
}

// IsValidLocation reports whether name is on the map.
func (m *Map) IsValidLocation(name string) bool {
	_, ok := m.locations[name]
	return ok
}

// Names returns every location name in sorted order.
func (m *Map) Names() []string {
	return sortedKeys(m.locations)
}

// Locations returns every location sorted by name.
func (m *Map) Locations() []Location {
	out := make([]Location, 0, len(m.locations))
	for _, n := range m.Names() {
		out = append(out, m.locations[n])
	}
	return out
}

// Neighbors returns a copy of the adjacency of name.
func (m *Map) Neighbors(name string) map[string]int {
	out := make(map[string]int, len(m.edges[name]))
	for to, w := range m.edges[name] {
		out[to] = w
	}
	return out
}

// DirectTravelTime returns 0 when a==b, the edge weight when adjacent,
// and false otherwise. It does not search for paths.
func (m *Map) DirectTravelTime(a, b string) (int, bool) {
	if a == b && m.IsValidLocation(a) {
		return 0, true
	}
	w, ok := m.edges[a][b]
	return w, ok
}

// ObjectsAt returns the object names placed at a location.
func (m *Map) ObjectsAt(name string) []string {
	loc, ok := m.locations[name]
	if !ok {
		return nil
	}
	return append([]string(nil), loc.Objects...)
}

// ServicesAt returns the service price table of a location.
func (m *Map) ServicesAt(name string) map[string]int {
	return copyTable(m.locations[name].Services)
}

// JobsAt returns the job capacity table of a location.
func (m *Map) JobsAt(name string) map[string]int {
	return copyTable(m.locations[name].Jobs)
}

// LocationsByType returns all locations of type t, sorted by name.
func (m *Map) LocationsByType(t LocationType) []Location {
	return m.filter(func(l Location) bool { return l.Type == t })
}

// LocationsWithTag returns all locations carrying tag, sorted by name.
func (m *Map) LocationsWithTag(tag string) []Location {
	return m.filter(func(l Location) bool { return l.HasTag(tag) })
}

// Intn is the subset of a random source RandomLocation needs.
type Intn interface {
	IntN(n int) int
}

// RandomLocation picks uniformly among locations matching pred (all when
// pred is nil).
func (m *Map) RandomLocation(rng Intn, pred func(Location) bool) (Location, bool) {
	candidates := m.filter(pred)
	if len(candidates) == 0 {
		return Location{}, false
	}
	return candidates[rng.IntN(len(candidates))], true
}

func (m *Map) filter(pred func(Location) bool) []Location {
	var out []Location
	for _, n := range m.Names() {
		loc := m.locations[n]
		if pred == nil || pred(loc) {
			out = append(out, loc)
		}
	}
	return out
}

// EdgeCount returns the number of directed edges.
func (m *Map) EdgeCount() int {
	n := 0
	for _, adj := range m.edges {
		n += len(adj)
	}
	return n
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(locations=%d, edges=%d)", len(m.locations), m.EdgeCount())
}

func copyTable(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
