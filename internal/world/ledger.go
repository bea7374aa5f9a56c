package world

import (
	"log/slog"
	"sort"
	"sync"
)

// Assignment is the job slot an agent currently holds.
type Assignment struct {
	Location string `json:"location"`
	Job      string `json:"job"`
}

type slotKey struct {
	location string
	job      string
}

// Ledger tracks which agent holds which (location, job) slot. Capacity
// comes from each location's job table. Every check-and-write happens
// under one mutex so concurrent assignments cannot exceed capacity.
type Ledger struct {
	m *Map

	mu       sync.Mutex
	byAgent  map[string]Assignment
	occupied map[slotKey]int
}

// NewLedger creates an empty ledger over m.
func NewLedger(m *Map) *Ledger {
	return &Ledger{
		m:        m,
		byAgent:  make(map[string]Assignment),
		occupied: make(map[slotKey]int),
	}
}

func (l *Ledger) capacity(location, job string) int {
	loc, ok := l.m.Location(location)
	if !ok {
		return 0
	}
	return loc.Jobs[job]
}

// IsJobAvailable reports whether the location declares job with nonzero
// capacity and has a free slot.
func (l *Ledger) IsJobAvailable(location, job string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.availableLocked(location, job)
}

func (l *Ledger) availableLocked(location, job string) bool {
	c := l.capacity(location, job)
	return c > 0 && l.occupied[slotKey{location, job}] < c
}

// Assign records agentID in the slot. It fails without mutation when the
// agent already holds a job or the slot is full.
func (l *Ledger) Assign(agentID, location, job string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, held := l.byAgent[agentID]; held {
		slog.Debug("agent already holds a job", "agent", agentID, "location", cur.Location, "job", cur.Job)
		return false
	}
	if !l.availableLocked(location, job) {
		return false
	}

	l.byAgent[agentID] = Assignment{Location: location, Job: job}
	l.occupied[slotKey{location, job}]++
	return true
}

// Release frees whatever slot agentID holds. No-op if none.
func (l *Ledger) Release(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.byAgent[agentID]
	if !ok {
		return
	}
	delete(l.byAgent, agentID)
	k := slotKey{a.Location, a.Job}
	if l.occupied[k] <= 1 {
		delete(l.occupied, k)
	} else {
		l.occupied[k]--
	}
}

// Assignment returns the slot agentID holds.
func (l *Ledger) Assignment(agentID string) (Assignment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.byAgent[agentID]
	return a, ok
}

// Occupancy returns the current occupant count of a slot.
func (l *Ledger) Occupancy(location, job string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.occupied[slotKey{location, job}]
}

// AllAvailableJobs maps each location with at least one open slot to its
// open job types, sorted.
func (l *Ledger) AllAvailableJobs() map[string][]string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string][]string)
	for _, loc := range l.m.Locations() {
		for job := range loc.Jobs {
			if l.availableLocked(loc.Name, job) {
				out[loc.Name] = append(out[loc.Name], job)
			}
		}
		sort.Strings(out[loc.Name])
	}
	for k, v := range out {
		if len(v) == 0 {
			delete(out, k)
		}
	}
	return out
}
