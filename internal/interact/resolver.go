// Package interact resolves object use, work shifts and purchases against
// the world and an agent's internal state.
package interact

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/mini-town/internal/state"
	"github.com/talgya/mini-town/internal/world"
)

// FailedMinutes is the time a failed interaction still costs.
const FailedMinutes = 1

// foodItems reduce hunger when bought.
var foodItems = map[string]bool{"apple": true, "bread": true, "sandwich": true}

// Hunger reduction per food item bought, sampled once per purchase.
const (
	foodHungerMin = 5
	foodHungerMax = 15
)

// Result is the outcome of one interaction.
type Result struct {
	OK      bool   `json:"ok"`
	Minutes int    `json:"minutes"`
	Detail  string `json:"detail,omitempty"`
}

func fail(detail string) Result {
	return Result{OK: false, Minutes: FailedMinutes, Detail: detail}
}

// Resolver applies interactions. Every method computes the new state on a
// copy and writes it back only on success, so a failed call leaves the
// caller's state untouched.
type Resolver struct {
	Map     *world.Map
	Ledger  *world.Ledger
	Catalog *world.Catalog
	Rand    state.Sampler
}

func New(m *world.Map, l *world.Ledger, c *world.Catalog, rng state.Sampler) *Resolver {
	return &Resolver{Map: m, Ledger: l, Catalog: c, Rand: rng}
}

// UseObject interacts with an object at the agent's location.
func (r *Resolver) UseObject(agentID string, st *state.Internal, location, object string) Result {
	log := slog.With("agent", agentID, "location", location, "object", object)

	loc, ok := r.Map.Location(location)
	if !ok {
		log.Warn("interaction at unknown location")
		return fail("unknown location")
	}
	if !loc.HasObject(object) {
		log.Warn("object not present at location")
		return fail("object not here")
	}
	proto, ok := r.Catalog.Get(object)
	if !ok {
		log.Warn("object has no interaction rules")
		return fail("object has no interaction rules")
	}
	if !proto.AllowedAt(loc) {
		log.Warn("object used at wrong location type", "type", loc.Type, "required", proto.RequiredLocationType)
		return fail("wrong location for object")
	}
	if !proto.Precondition.Met(*st) {
		log.Info("interaction precondition not met", "attribute", proto.Precondition.Attribute, "above", proto.Precondition.Above)
		return fail("precondition not met")
	}

	next := *st
	if proto.Cost != nil {
		if next.Money < *proto.Cost {
			log.Warn("cannot afford interaction", "cost", *proto.Cost, "money", next.Money)
			return fail("insufficient funds")
		}
		next.Money -= *proto.Cost
	}

	for _, e := range proto.Effects {
		if err := next.Apply(e, r.Rand); err != nil {
			log.Warn("invalid interaction effect", "effect", e.String(), "error", err)
			return fail("invalid effect")
		}
	}

	*st = next
	detail := fmt.Sprintf("used %s", object)
	if proto.Produces != "" {
		detail += fmt.Sprintf(" and got %s", proto.Produces)
	}
	if proto.ServiceName != "" {
		log.Info("service completed", "service", proto.ServiceName)
	}
	log.Info("interaction succeeded", "minutes", proto.DurationMinutes)
	return Result{OK: true, Minutes: proto.DurationMinutes, Detail: detail}
}

// Work takes a job slot at the agent's location and pays for minutes of
// work up front. The slot stays held; the caller releases it when the
// shift ends.
func (r *Resolver) Work(agentID string, st *state.Internal, location, job string, minutes int) Result {
	log := slog.With("agent", agentID, "location", location, "job", job)

	if minutes <= 0 {
		return fail("non-positive duration")
	}
	loc, ok := r.Map.Location(location)
	if !ok {
		log.Warn("work at unknown location")
		return fail("unknown location")
	}

	var proto *world.Prototype
	for _, obj := range loc.Objects {
		if p, ok := r.Catalog.Get(obj); ok && p.JobType == job {
			proto = p
			break
		}
	}
	if proto == nil {
		log.Warn("no workstation for job at location")
		return fail("no such job here")
	}
	if proto.HourlyWage == nil {
		log.Error("job has no wage", "object", proto.Name)
		return fail("job has no wage")
	}

	hours := float64(minutes) / 60
	next := *st
	next.Money += int(math.Round(float64(*proto.HourlyWage) / 60 * float64(minutes)))
	for _, e := range proto.PerHour {
		if err := next.ApplyScaled(e, r.Rand, hours); err != nil {
			log.Warn("invalid work effect", "effect", e.String(), "error", err)
			return fail("invalid effect")
		}
	}

	// Assignment is the last fallible step so a rejected slot needs no rollback.
	if !r.Ledger.Assign(agentID, location, job) {
		log.Info("job slot unavailable")
		return fail("job slot unavailable")
	}

	earned := next.Money - st.Money
	*st = next
	log.Info("work started", "minutes", minutes, "earned", earned)
	return Result{OK: true, Minutes: minutes, Detail: fmt.Sprintf("worked as %s and earned %d", job, earned)}
}

// Purchase buys qty of item from a seller at the agent's location.
func (r *Resolver) Purchase(agentID string, st *state.Internal, location, item string, qty int) Result {
	log := slog.With("agent", agentID, "location", location, "item", item, "quantity", qty)

	if qty <= 0 {
		return fail("non-positive quantity")
	}
	loc, ok := r.Map.Location(location)
	if !ok {
		log.Warn("purchase at unknown location")
		return fail("unknown location")
	}

	var (
		seller *world.Prototype
		price  int
	)
	for _, obj := range loc.Objects {
		p, ok := r.Catalog.Get(obj)
		if !ok {
			continue
		}
		if pr, ok := p.Price(item); ok {
			seller, price = p, pr
			break
		}
	}
	if seller == nil {
		log.Warn("item not sold here")
		return fail("item not sold here")
	}

	total := price * qty
	if st.Money < total {
		log.Warn("cannot afford purchase", "total", total, "money", st.Money)
		return fail("insufficient funds")
	}

	next := *st
	next.Money -= total
	if foodItems[item] {
		next.Add(state.AttrHunger, -r.Rand.Between(foodHungerMin, foodHungerMax)*qty)
	}

	*st = next
	log.Info("purchase succeeded", "seller", seller.Name, "total", total)
	return Result{OK: true, Minutes: seller.DurationMinutes, Detail: fmt.Sprintf("bought %d %s for %d", qty, item, total)}
}
