// Simulation ties the timeline to the agents, the event log, persistence
// and broadcast.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/llm"
	"github.com/talgya/mini-town/internal/memory"
	"github.com/talgya/mini-town/internal/world"
)

// Entry is a notable occurrence in the town.
type Entry struct {
	Time        time.Time `json:"time"`
	AgentID     string    `json:"agent_id,omitempty"`
	Category    string    `json:"category"` // "action", "dialogue", "failure", "season", ...
	Description string    `json:"description"`
}

// Entry categories.
const (
	CategoryAction   = "action"
	CategoryDialogue = "dialogue"
	CategoryFailure  = "failure"
	CategorySeason   = "season"
	CategoryDay      = "day"
	CategoryBulletin = "bulletin"
)

// Broadcast subjects.
const (
	SubjectActions  = "town.actions"
	SubjectClock    = "town.clock"
	SubjectBulletin = "town.bulletin"
)

const maxRecent = 1000

// MetaSimTime is the journal key holding the last saved simulated time.
const MetaSimTime = "sim_time"

// Journal stores the event log and agent snapshots. persistence.DB
// implements it.
type Journal interface {
	SaveEvents(ctx context.Context, events []Entry) error
	SaveAgents(ctx context.Context, views []agents.View) error
	SaveMeta(ctx context.Context, key, value string) error
}

// Publisher broadcasts events to outside listeners.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Reporter writes the daily bulletin. llm.Bulletin implements it.
type Reporter interface {
	Write(ctx context.Context, data *llm.BulletinData) (string, error)
}

// ActionEvent is broadcast for every committed action.
type ActionEvent struct {
	Time     time.Time `json:"time"`
	AgentID  string    `json:"agent_id"`
	Name     string    `json:"name"`
	Action   string    `json:"action"`
	OK       bool      `json:"ok"`
	Detail   string    `json:"detail"`
	Location string    `json:"location"`
}

// ClockEvent is broadcast on every hour, day and season boundary.
type ClockEvent struct {
	Event  Event     `json:"event"`
	Time   time.Time `json:"time"`
	Season string    `json:"season"`
}

// SimStats tracks aggregate town statistics.
type SimStats struct {
	Time       time.Time      `json:"time"`
	Season     string         `json:"season"`
	Daytime    bool           `json:"daytime"`
	Paused     bool           `json:"paused"`
	TimeScale  float64        `json:"time_scale"`
	Population int            `json:"population"`
	Busy       int            `json:"busy"`
	Idle       int            `json:"idle"`
	InFlight   int            `json:"in_flight"`
	Actions    uint64         `json:"actions"`
	Failures   uint64         `json:"failures"`
	AvgMoney   float64        `json:"avg_money"`
	AvgEnergy  float64        `json:"avg_energy"`
	Moods      map[string]int `json:"moods"`
	Timeline   Stats          `json:"timeline"`
}

// Simulation holds the town and wires its systems to the clock.
type Simulation struct {
	Timeline *Timeline
	Map      *world.Map
	Catalog  *world.Catalog
	Ledger   *world.Ledger
	Registry *agents.Registry
	Memory   *memory.Store

	// Journal, Broadcast and Reporter are optional.
	Journal   Journal
	Broadcast Publisher
	Reporter  Reporter

	reports  sync.WaitGroup
	mu       sync.Mutex
	recent   []Entry
	pending  []Entry
	actions  uint64
	failures uint64
}

// NewSimulation creates a Simulation over already built components. Call
// Start to subscribe it to the timeline.
func NewSimulation(tl *Timeline, m *world.Map, c *world.Catalog, l *world.Ledger, reg *agents.Registry, mem *memory.Store) *Simulation {
	return &Simulation{
		Timeline: tl,
		Map:      m,
		Catalog:  c,
		Ledger:   l,
		Registry: reg,
		Memory:   mem,
	}
}

// Start subscribes the simulation to every timeline event.
func (s *Simulation) Start() {
	s.Timeline.Subscribe(MinutePassed, s.TickMinute)
	s.Timeline.Subscribe(HourPassed, s.TickHour)
	s.Timeline.Subscribe(DayPassed, s.TickDay)
	s.Timeline.Subscribe(SeasonChanged, s.TickSeason)
}

// TickMinute completes due actions and dispatches idle agents.
func (s *Simulation) TickMinute(ctx context.Context, _ Event, now time.Time, _ string) error {
	s.Registry.OnMinute(ctx, now)
	return nil
}

// TickHour flushes the event log and broadcasts the hour.
func (s *Simulation) TickHour(ctx context.Context, ev Event, now time.Time, season string) error {
	s.announce(ctx, ev, now, season)
	return s.flushEvents(ctx)
}

// TickDay logs the daily report and saves the town.
func (s *Simulation) TickDay(ctx context.Context, ev Event, now time.Time, season string) error {
	st := s.Stats()
	s.record(Entry{Time: now, Category: CategoryDay, Description: "a new day began: " + SimTime(now)})
	slog.Info("daily report",
		"time", SimTime(now),
		"population", st.Population,
		"actions", st.Actions,
		"failures", st.Failures,
		"avg_money", fmt.Sprintf("%.1f", st.AvgMoney),
		"avg_energy", fmt.Sprintf("%.1f", st.AvgEnergy),
		"moods", st.Moods,
	)
	s.announce(ctx, ev, now, season)
	s.report(ctx, now, season, st)
	return s.Save(ctx)
}

// report writes the bulletin for the day that just ended in the background
// so a slow model never holds up the clock.
func (s *Simulation) report(ctx context.Context, now time.Time, season string, st SimStats) {
	if s.Reporter == nil {
		return
	}
	dayStart := now.Add(-24 * time.Hour)
	data := &llm.BulletinData{
		Day:        dayStart.Format("Monday Jan 2 2006"),
		Season:     season,
		Population: st.Population,
		Actions:    st.Actions,
		Failures:   st.Failures,
		AvgMoney:   st.AvgMoney,
		Moods:      st.Moods,
	}
	for _, e := range s.RecentEvents(-1) {
		if e.Time.Before(dayStart) || !e.Time.Before(now) {
			continue
		}
		switch e.Category {
		case CategoryAction, CategoryDialogue, CategoryFailure:
			data.Events = append(data.Events, e.Time.Format("15:04")+" "+e.Description)
		}
	}

	bctx := context.WithoutCancel(ctx)
	s.reports.Add(1)
	go func() {
		defer s.reports.Done()
		text, err := s.Reporter.Write(bctx, data)
		if err != nil {
			slog.Warn("failed to write bulletin", "day", data.Day, "error", err)
			return
		}
		s.record(Entry{Time: now, Category: CategoryBulletin, Description: text})
		if s.Broadcast != nil {
			if err := s.Broadcast.Publish(bctx, SubjectBulletin, map[string]string{"day": data.Day, "text": text}); err != nil {
				slog.Warn("failed to broadcast bulletin", "error", err)
			}
		}
		slog.Info("bulletin written", "day", data.Day, "events", len(data.Events))
	}()
}

// TickSeason records the season change.
func (s *Simulation) TickSeason(ctx context.Context, ev Event, now time.Time, season string) error {
	s.record(Entry{Time: now, Category: CategorySeason, Description: "the season turned to " + season})
	s.announce(ctx, ev, now, season)
	return nil
}

// Observe is an agents.Observer: every committed outcome goes to the event
// log and the broadcast.
func (s *Simulation) Observe(ctx context.Context, a *agents.Agent, out agents.Outcome, now time.Time) {
	cat := CategoryAction
	switch {
	case !out.OK:
		cat = CategoryFailure
	case out.Action.Kind == agents.KindSpeak && len(out.Heard) > 0:
		cat = CategoryDialogue
	}

	s.mu.Lock()
	s.actions++
	if !out.OK {
		s.failures++
	}
	s.mu.Unlock()
	s.record(Entry{Time: now, AgentID: a.ID, Category: cat, Description: a.Name + " " + out.Detail})

	if s.Broadcast == nil {
		return
	}
	ev := ActionEvent{
		Time:     now,
		AgentID:  a.ID,
		Name:     a.Name,
		Action:   out.Action.String(),
		OK:       out.OK,
		Detail:   out.Detail,
		Location: out.Location,
	}
	if err := s.Broadcast.Publish(ctx, SubjectActions, ev); err != nil {
		slog.Warn("failed to broadcast action", "agent", a.ID, "error", err)
	}
}

func (s *Simulation) announce(ctx context.Context, ev Event, now time.Time, season string) {
	if s.Broadcast == nil {
		return
	}
	if err := s.Broadcast.Publish(ctx, SubjectClock, ClockEvent{Event: ev, Time: now, Season: season}); err != nil {
		slog.Warn("failed to broadcast clock event", "event", ev, "error", err)
	}
}

func (s *Simulation) record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, e)
	if len(s.recent) > maxRecent {
		s.recent = s.recent[len(s.recent)-maxRecent:]
	}
	if s.Journal != nil {
		s.pending = append(s.pending, e)
	}
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *Simulation) RecentEvents(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit >= 0 && len(s.recent) > limit {
		start = len(s.recent) - limit
	}
	out := make([]Entry, len(s.recent)-start)
	copy(out, s.recent[start:])
	return out
}

func (s *Simulation) flushEvents(ctx context.Context) error {
	if s.Journal == nil {
		return nil
	}
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := s.Journal.SaveEvents(ctx, batch); err != nil {
		// keep them for the next flush
		s.mu.Lock()
		s.pending = append(batch, s.pending...)
		s.mu.Unlock()
		return goerr.Wrap(err, "failed to save events", goerr.V("count", len(batch)))
	}
	return nil
}

// Save writes pending events, agent snapshots and the clock to the journal.
func (s *Simulation) Save(ctx context.Context) error {
	if s.Journal == nil {
		return nil
	}
	if err := s.flushEvents(ctx); err != nil {
		return err
	}
	views := s.Registry.Snapshot()
	if err := s.Journal.SaveAgents(ctx, views); err != nil {
		return goerr.Wrap(err, "failed to save agents", goerr.V("count", len(views)))
	}
	now := s.Timeline.Now()
	if err := s.Journal.SaveMeta(ctx, MetaSimTime, now.Format(time.RFC3339)); err != nil {
		return goerr.Wrap(err, "failed to save clock")
	}
	slog.Info("town saved", "agents", len(views), "time", SimTime(now))
	return nil
}

// Stats computes the current town statistics.
func (s *Simulation) Stats() SimStats {
	st := SimStats{
		Time:      s.Timeline.Now(),
		Season:    s.Timeline.Season(),
		Daytime:   s.Timeline.IsDaytime(),
		Paused:    s.Timeline.Paused(),
		TimeScale: s.Timeline.TimeScale(),
		InFlight:  s.Registry.InFlight(),
		Moods:     make(map[string]int),
		Timeline:  s.Timeline.Stats(),
	}
	s.mu.Lock()
	st.Actions, st.Failures = s.actions, s.failures
	s.mu.Unlock()

	var money, energy int
	for _, a := range s.Registry.All() {
		st.Population++
		if a.IsIdle() {
			st.Idle++
		} else {
			st.Busy++
		}
		in := a.State()
		money += in.Money
		energy += in.Energy
		st.Moods[string(in.Mood)]++
	}
	if st.Population > 0 {
		st.AvgMoney = float64(money) / float64(st.Population)
		st.AvgEnergy = float64(energy) / float64(st.Population)
	}
	return st
}

// WaitReports blocks until every started bulletin is written.
func (s *Simulation) WaitReports() {
	s.reports.Wait()
}

// Shutdown waits for in-flight cycles and bulletins and performs a final
// save.
func (s *Simulation) Shutdown(ctx context.Context) error {
	s.Registry.Wait()
	s.reports.Wait()
	return s.Save(ctx)
}
