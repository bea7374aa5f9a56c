package agents_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/interact"
	"github.com/talgya/mini-town/internal/llm"
	"github.com/talgya/mini-town/internal/memory"
	"github.com/talgya/mini-town/internal/state"
	"github.com/talgya/mini-town/internal/world"
)

var t0 = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

// lowSampler always draws the lower bound.
type lowSampler struct{}

func (lowSampler) Between(lo, _ int) int { return lo }

type town struct {
	m        *world.Map
	ledger   *world.Ledger
	reg      *agents.Registry
	exec     *agents.Executor
	resolver *interact.Resolver
}

func newTown(t *testing.T) *town {
	t.Helper()
	m := world.NewMap()
	m.Load([]world.Location{
		{Name: "Apartment_1A", Type: world.LocationResidential, Objects: []string{"Bed"}},
		{Name: "Apartment_1B", Type: world.LocationResidential},
		{Name: "Cafe", Type: world.LocationCommercial, Description: "Corner cafe", Objects: []string{"CoffeeMachine", "CafeCounter"}, Jobs: map[string]int{"barista": 1}},
		{Name: "Supermarket", Type: world.LocationCommercial, Objects: []string{"CheckoutCounter", "Shelf_Food"}, Jobs: map[string]int{"cashier": 1}},
		{Name: "Park", Type: world.LocationOutdoor, Objects: []string{"Bench"}},
		{Name: "Walking_Path", Type: world.LocationOutdoor},
		{Name: "Rooftop", Type: world.LocationInternalPublic},
		{Name: "Laundry_Room", Type: world.LocationInternalPublic, Objects: []string{"WashingMachine"}},
		{Name: "Bus_Stop", Type: world.LocationTransit},
		{Name: "Highway", Type: world.LocationTransit},
		{Name: "Island", Type: world.LocationOutdoor},
	}, map[string]map[string]int{
		"Apartment_1A": {"Cafe": 4, "Park": 10, "Rooftop": 2, "Laundry_Room": 1, "Apartment_1B": 1},
		"Cafe":         {"Park": 3, "Supermarket": 2},
		"Park":         {"Walking_Path": 2, "Bus_Stop": 5},
		"Bus_Stop":     {"Highway": 5},
	})
	ledger := world.NewLedger(m)
	res := interact.New(m, ledger, world.DefaultCatalog(), lowSampler{})
	reg := agents.NewRegistry(ledger)
	return &town{
		m:        m,
		ledger:   ledger,
		reg:      reg,
		resolver: res,
		exec:     &agents.Executor{Agents: reg, Map: m, Resolver: res, Rand: lowSampler{}},
	}
}

// add registers an agent with the default state at location.
func (tw *town) add(t *testing.T, id, location string, edit ...func(*state.Internal)) *agents.Agent {
	t.Helper()
	st := state.Default()
	for _, fn := range edit {
		fn(&st)
	}
	a := agents.NewAgent(id, cap1(id), "", location, st)
	if err := tw.reg.Register(a); err != nil {
		t.Fatal(err)
	}
	return a
}

func cap1(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// scriptedDecider returns a fixed decision, error or panic.
type scriptedDecider struct {
	decision llm.Decision
	err      error
	panics   bool

	mu   sync.Mutex
	seen []*llm.DecisionContext
}

func (s *scriptedDecider) Decide(_ context.Context, dc *llm.DecisionContext) (llm.Decision, error) {
	s.mu.Lock()
	s.seen = append(s.seen, dc)
	s.mu.Unlock()
	if s.panics {
		panic("decider exploded")
	}
	return s.decision, s.err
}

// recordingMemory keeps added records and returns canned recalls.
type recordingMemory struct {
	mu      sync.Mutex
	added   []memory.Record
	recall  []memory.Record
	queries []string
}

func (r *recordingMemory) Add(_ context.Context, rec memory.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, rec)
}

func (r *recordingMemory) Retrieve(_ context.Context, _ string, query string, _ time.Time, _ int) []memory.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	return r.recall
}

type fixedCalendar struct {
	season  string
	daytime bool
}

func (c fixedCalendar) Season() string  { return c.season }
func (c fixedCalendar) IsDaytime() bool { return c.daytime }
