// Package engine provides the simulated clock and the glue that drives the
// town from it.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Event names a timeline notification.
type Event string

const (
	MinutePassed  Event = "minute_passed"
	HourPassed    Event = "hour_passed"
	DayPassed     Event = "day_passed"
	SeasonChanged Event = "season_changed"
)

// Events lists every event in publish order.
var Events = []Event{MinutePassed, HourPassed, DayPassed, SeasonChanged}

func (e Event) valid() bool {
	switch e {
	case MinutePassed, HourPassed, DayPassed, SeasonChanged:
		return true
	}
	return false
}

// Handler receives timeline events. Returned errors and panics are logged
// and never stop the remaining handlers.
type Handler func(ctx context.Context, ev Event, now time.Time, season string) error

// DefaultTimeScale is simulated minutes per real second.
const DefaultTimeScale = 4.0

const pausedPoll = 500 * time.Millisecond

// Stats is a snapshot of timeline counters.
type Stats struct {
	Ticks     uint64           `json:"ticks"`
	Published map[Event]uint64 `json:"published"`
	Failures  uint64           `json:"handler_failures"`
}

// Timeline is the simulated clock. It advances one minute per tick and
// publishes events to subscribers synchronously, in subscription order.
type Timeline struct {
	mu       sync.RWMutex
	now      time.Time
	scale    float64
	paused   bool
	handlers map[Event][]Handler

	statsMu   sync.Mutex
	ticks     uint64
	published map[Event]uint64
	failures  uint64

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTimeline creates a timeline starting at start. A non-positive scale
// falls back to DefaultTimeScale.
func NewTimeline(start time.Time, scale float64) *Timeline {
	if scale <= 0 {
		slog.Warn("ignoring non-positive time scale", "scale", scale, "default", DefaultTimeScale)
		scale = DefaultTimeScale
	}
	return &Timeline{
		now:       start.Truncate(time.Minute),
		scale:     scale,
		handlers:  make(map[Event][]Handler),
		published: make(map[Event]uint64),
		sleep:     sleepCtx,
	}
}

// Subscribe registers h for ev. Unknown events are ignored with a warning.
func (t *Timeline) Subscribe(ev Event, h Handler) {
	if !ev.valid() {
		slog.Warn("ignoring subscription to unknown event", "event", ev)
		return
	}
	if h == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[ev] = append(t.handlers[ev], h)
}

// Now returns the current simulated time.
func (t *Timeline) Now() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.now
}

// Season returns the season of the current simulated time.
func (t *Timeline) Season() string {
	return SeasonFor(t.Now())
}

// IsDaytime reports whether the current simulated hour is daytime.
func (t *Timeline) IsDaytime() bool {
	return IsDaytime(t.Now(), DayStartHour, NightStartHour)
}

func (t *Timeline) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		t.paused = true
		slog.Info("timeline paused", "time", t.now)
	}
}

func (t *Timeline) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		t.paused = false
		slog.Info("timeline resumed", "time", t.now)
	}
}

func (t *Timeline) Paused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused
}

// SetTimeScale changes simulated minutes per real second. Non-positive
// values are ignored.
func (t *Timeline) SetTimeScale(scale float64) {
	if scale <= 0 {
		slog.Warn("ignoring non-positive time scale", "scale", scale)
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scale = scale
	slog.Info("time scale changed", "scale", scale)
}

func (t *Timeline) TimeScale() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scale
}

// Stats returns a copy of the timeline counters.
func (t *Timeline) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	pub := make(map[Event]uint64, len(t.published))
	for k, v := range t.published {
		pub[k] = v
	}
	return Stats{Ticks: t.ticks, Published: pub, Failures: t.failures}
}

// Tick advances the clock by exactly one minute and publishes the events
// implied by the boundary crossed. Season changes are only checked when the
// calendar day changes.
func (t *Timeline) Tick(ctx context.Context) {
	t.mu.Lock()
	prev := t.now
	t.now = prev.Add(time.Minute)
	now := t.now
	t.mu.Unlock()

	t.statsMu.Lock()
	t.ticks++
	t.statsMu.Unlock()

	season := SeasonFor(now)
	t.publish(ctx, MinutePassed, now, season)

	if now.Hour() != prev.Hour() {
		t.publish(ctx, HourPassed, now, season)
	}

	py, pm, pd := prev.Date()
	ny, nm, nd := now.Date()
	if py != ny || pm != nm || pd != nd {
		t.publish(ctx, DayPassed, now, season)
		if old := SeasonFor(prev); old != season {
			slog.Info("season changed", "from", old, "to", season, "time", now)
			t.publish(ctx, SeasonChanged, now, season)
		}
	}
}

func (t *Timeline) publish(ctx context.Context, ev Event, now time.Time, season string) {
	t.mu.RLock()
	hs := make([]Handler, len(t.handlers[ev]))
	copy(hs, t.handlers[ev])
	t.mu.RUnlock()

	t.statsMu.Lock()
	t.published[ev]++
	t.statsMu.Unlock()

	for i, h := range hs {
		if err := t.invoke(ctx, h, ev, now, season); err != nil {
			t.statsMu.Lock()
			t.failures++
			t.statsMu.Unlock()
			slog.Error("timeline handler failed", "event", ev, "handler", i, "time", now, "error", err)
		}
	}
}

func (t *Timeline) invoke(ctx context.Context, h Handler, ev Event, now time.Time, season string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("handler panicked", goerr.V("panic", r), goerr.V("event", ev))
		}
	}()
	return h(ctx, ev, now, season)
}

// Run drives the timeline until ctx is cancelled. While running it sleeps
// 1/scale real seconds between ticks; while paused it polls every 500ms.
func (t *Timeline) Run(ctx context.Context) error {
	slog.Info("timeline started", "time", t.Now(), "scale", t.TimeScale())
	defer func() { slog.Info("timeline stopped", "time", t.Now()) }()

	for {
		if t.Paused() {
			if err := t.sleep(ctx, pausedPoll); err != nil {
				return nil
			}
			continue
		}

		interval := time.Duration(float64(time.Second) / t.TimeScale())
		if err := t.sleep(ctx, interval); err != nil {
			return nil
		}
		t.Tick(ctx)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
