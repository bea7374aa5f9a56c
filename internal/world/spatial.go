package world

// Locatable is anything standing at a named location.
type Locatable interface {
	CurrentLocation() string
}

// AgentsAtLocation filters all to those currently at name, keeping order.
func AgentsAtLocation[T Locatable](name string, all []T) []T {
	var out []T
	for _, a := range all {
		if a.CurrentLocation() == name {
			out = append(out, a)
		}
	}
	return out
}

// ObjectsWithVerb returns the objects at a location whose catalog entry
// declares verb. Objects without a catalog entry are ignored.
func (m *Map) ObjectsWithVerb(name, verb string, catalog *Catalog) []string {
	var out []string
	for _, obj := range m.ObjectsAt(name) {
		if p, ok := catalog.Get(obj); ok && p.Verb == verb {
			out = append(out, obj)
		}
	}
	return out
}
