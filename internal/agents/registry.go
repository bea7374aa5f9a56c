package agents

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/mini-town/internal/world"
)

// ErrDuplicateAgent is returned when an id is registered twice.
var ErrDuplicateAgent = goerr.New("agent already registered")

// Runner executes one decision cycle. *Cycle implements it.
type Runner interface {
	Run(ctx context.Context, a *Agent, now time.Time) Outcome
}

// Registry owns every agent and drives them from the minute clock.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	ledger *world.Ledger
	runner Runner

	wg         sync.WaitGroup
	inFlight   atomic.Int64
	dispatched atomic.Uint64
}

func NewRegistry(ledger *world.Ledger) *Registry {
	return &Registry{agents: make(map[string]*Agent), ledger: ledger}
}

// SetRunner installs the cycle. Until it is set OnMinute only completes
// actions.
func (r *Registry) SetRunner(run Runner) {
	r.mu.Lock()
	r.runner = run
	r.mu.Unlock()
}

func (r *Registry) Register(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.ID]; exists {
		return goerr.Wrap(ErrDuplicateAgent, "cannot register agent", goerr.V("id", a.ID), goerr.V("name", a.Name))
	}
	r.agents[a.ID] = a
	slog.Info("agent registered", "id", a.ID, "name", a.Name, "location", a.CurrentLocation())
	return nil
}

func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// All returns every agent ordered by id.
func (r *Registry) All() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, id := range sortedIDs(r.agents) {
		out = append(out, r.agents[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// AgentsAt returns the agents currently at location, ordered by id.
func (r *Registry) AgentsAt(location string) []*Agent {
	return world.AgentsAtLocation(location, r.All())
}

// OnMinute completes due actions, releasing any job slot they held, then
// dispatches a cycle for every idle agent. Cycles run in their own
// goroutines and are not awaited.
func (r *Registry) OnMinute(ctx context.Context, now time.Time) {
	agents := r.All()
	for _, a := range agents {
		done, ok := a.finishIfDue(now)
		if !ok {
			continue
		}
		if r.ledger != nil {
			r.ledger.Release(a.ID)
		}
		slog.Debug("action completed", "agent", a.ID, "action", done.String())
	}

	r.mu.RLock()
	run := r.runner
	r.mu.RUnlock()
	if run == nil {
		return
	}
	for _, a := range agents {
		if !a.tryBegin() {
			continue
		}
		r.dispatch(ctx, run, a, now)
	}
}

func (r *Registry) dispatch(ctx context.Context, run Runner, a *Agent, now time.Time) {
	r.inFlight.Add(1)
	r.dispatched.Add(1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Add(-1)
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("agent cycle panicked", "agent", a.ID, "panic", rec)
				// never leave the agent stuck in Thinking
				a.commit(Fallback(), now.Add(time.Minute))
			}
		}()
		run.Run(ctx, a, now)
	}()
}

// InFlight is the number of cycles currently running.
func (r *Registry) InFlight() int {
	return int(r.inFlight.Load())
}

// Dispatched counts cycles started since creation.
func (r *Registry) Dispatched() uint64 {
	return r.dispatched.Load()
}

// Wait blocks until every dispatched cycle has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Snapshot returns a view of every agent ordered by id.
func (r *Registry) Snapshot() []View {
	agents := r.All()
	out := make([]View, len(agents))
	for i, a := range agents {
		out[i] = a.View()
	}
	return out
}
