package world

import (
	"log/slog"
	"os"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/talgya/mini-town/internal/state"
)

// Interaction verbs used by the catalog.
const (
	VerbUse     = "use"
	VerbSitOn   = "sit_on"
	VerbWorkAt  = "work_at"
	VerbBuyFrom = "buy_from"
)

// Precondition gates an interaction on a numeric attribute being strictly
// above a threshold (e.g. laundry need > 20 before washing).
type Precondition struct {
	Attribute state.Attribute `json:"attribute" yaml:"attribute"`
	Above     int             `json:"above" yaml:"above"`
}

// Met reports whether s satisfies the precondition.
func (p *Precondition) Met(s state.Internal) bool {
	if p == nil {
		return true
	}
	v, ok := s.Value(p.Attribute)
	return ok && v > p.Above
}

// Prototype is the static, read-only definition of an interactable object.
type Prototype struct {
	Name                 string
	Description          string
	Verb                 string
	Cost                 *int
	Produces             string
	Requires             string
	ServiceName          string
	Effects              []state.Effect
	DurationMinutes      int
	JobType              string
	HourlyWage           *int
	MaxWorkers           int
	PerHour              []state.Effect
	ItemsForSale         map[string]int
	RequiredLocationType LocationType
	RequiredLocationName string
	Precondition         *Precondition
}

// Price returns the unit price of item if this object sells it.
func (p *Prototype) Price(item string) (int, bool) {
	if p.Verb != VerbBuyFrom {
		return 0, false
	}
	price, ok := p.ItemsForSale[item]
	return price, ok
}

// AllowedAt reports whether the object may be used at loc. A declared
// location type or location name is enough; with neither, any place works.
func (p *Prototype) AllowedAt(loc Location) bool {
	if p.RequiredLocationType == "" && p.RequiredLocationName == "" {
		return true
	}
	return (p.RequiredLocationType != "" && loc.Type == p.RequiredLocationType) ||
		(p.RequiredLocationName != "" && loc.Name == p.RequiredLocationName)
}

// Catalog holds object prototypes keyed by name. Read-only after load.
type Catalog struct {
	protos map[string]*Prototype
}

// Fallback durations when a prototype declares none.
const (
	defaultDuration     = 1
	defaultSaleDuration = 3
)

// NewCatalog builds a catalog from prototypes; later duplicates win.
func NewCatalog(protos ...*Prototype) *Catalog {
	c := &Catalog{protos: make(map[string]*Prototype, len(protos))}
	for _, p := range protos {
		if p.DurationMinutes <= 0 {
			p.DurationMinutes = defaultDuration
			if p.Verb == VerbBuyFrom {
				p.DurationMinutes = defaultSaleDuration
			}
		}
		c.protos[p.Name] = p
	}
	return c
}

// Get returns the prototype for name.
func (c *Catalog) Get(name string) (*Prototype, bool) {
	p, ok := c.protos[name]
	return p, ok
}

// Names returns all prototype names sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.protos))
	for n := range c.protos {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of prototypes.
func (c *Catalog) Len() int { return len(c.protos) }

// protoSpec is the on-disk shape of a prototype. Effects use the loose
// attribute → [min, max] | value form.
type protoSpec struct {
	Description          string         `yaml:"description"`
	Verb                 string         `yaml:"interaction_verb"`
	Cost                 *int           `yaml:"cost"`
	Produces             string         `yaml:"produces_item"`
	Requires             string         `yaml:"requires_item"`
	ServiceName          string         `yaml:"service_name"`
	Effects              map[string]any `yaml:"state_changes"`
	DurationMinutes      int            `yaml:"duration_minutes"`
	JobType              string         `yaml:"job_type"`
	HourlyWage           *int           `yaml:"hourly_wage"`
	MaxWorkers           int            `yaml:"max_workers"`
	PerHour              map[string]any `yaml:"state_changes_per_hour"`
	ItemsForSale         map[string]int `yaml:"items_for_sale"`
	RequiredLocationType string         `yaml:"required_location_type"`
	RequiredLocationName string         `yaml:"required_location_name"`
	Precondition         *Precondition  `yaml:"precondition"`
}

func (s *protoSpec) build(name string) (*Prototype, error) {
	p := &Prototype{
		Name:                 name,
		Description:          s.Description,
		Verb:                 s.Verb,
		Cost:                 s.Cost,
		Produces:             s.Produces,
		Requires:             s.Requires,
		ServiceName:          s.ServiceName,
		DurationMinutes:      s.DurationMinutes,
		JobType:              s.JobType,
		HourlyWage:           s.HourlyWage,
		MaxWorkers:           s.MaxWorkers,
		ItemsForSale:         s.ItemsForSale,
		RequiredLocationName: s.RequiredLocationName,
		Precondition:         s.Precondition,
	}

	var err error
	if p.Effects, err = state.ParseEffects(s.Effects); err != nil {
		return nil, goerr.Wrap(err, "invalid state_changes", goerr.V("object", name))
	}
	if p.PerHour, err = state.ParseEffects(s.PerHour); err != nil {
		return nil, goerr.Wrap(err, "invalid state_changes_per_hour", goerr.V("object", name))
	}
	if s.RequiredLocationType != "" {
		t, ok := ParseLocationType(s.RequiredLocationType)
		if !ok {
			return nil, goerr.New("unknown required_location_type", goerr.V("object", name))
		}
		p.RequiredLocationType = t
	}
	if p.Precondition != nil {
		attr, ok := state.ParseAttribute(string(p.Precondition.Attribute))
		if !ok || attr.Enumerated() {
			return nil, goerr.New("invalid precondition attribute", goerr.V("object", name))
		}
		p.Precondition.Attribute = attr
	}
	if p.Cost != nil && *p.Cost < 0 {
		return nil, goerr.New("negative cost", goerr.V("object", name))
	}
	for item, price := range p.ItemsForSale {
		if price < 0 {
			return nil, goerr.New("negative price", goerr.V("object", name), goerr.V("item", item))
		}
	}
	return p, nil
}

// LoadCatalogFile reads prototypes from a YAML mapping of name → spec.
// Invalid entries are skipped; a missing or unparsable file is an error.
func LoadCatalogFile(path string) (*Catalog, error) {
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read object catalog", goerr.V("path", path))
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, goerr.Wrap(err, "failed to parse object catalog", goerr.V("path", path))
	}

	var protos []*Prototype
	for _, name := range sortedKeys(raw) {
		node := raw[name]
		var spec protoSpec
		if err := node.Decode(&spec); err != nil {
			slog.Warn("skipping malformed catalog entry", "object", name, "error", err)
			continue
		}
		p, err := spec.build(name)
		if err != nil {
			slog.Warn("skipping invalid catalog entry", "object", name, "error", err)
			continue
		}
		protos = append(protos, p)
	}

	slog.Info("object catalog loaded", "path", path, "objects", len(protos))
	return NewCatalog(protos...), nil
}

func intPtr(v int) *int { return &v }

// DefaultCatalog returns the built-in interaction rules used when no
// catalog file is configured.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		&Prototype{
			Name:                 "WashingMachine",
			RequiredLocationType: LocationInternalPublic,
			Description:          "Coin-operated washer in the laundry room",
			Verb:                 VerbUse,
			Cost:                 intPtr(5),
			ServiceName:          "laundry",
			DurationMinutes:      30,
			Precondition:         &Precondition{Attribute: state.AttrLaundryNeed, Above: 20},
			Effects: []state.Effect{
				state.Delta(state.AttrEnergy, -5, -5),
				state.Delta(state.AttrLaundryNeed, -70, -30),
			},
		},
		&Prototype{
			Name:                 "CoffeeMachine",
			RequiredLocationType: LocationCommercial,
			Description:          "Espresso machine at the cafe",
			Verb:                 VerbUse,
			Cost:                 intPtr(5),
			Produces:             "coffee",
			DurationMinutes:      3,
			Effects: []state.Effect{
				state.Delta(state.AttrEnergy, 10, 25),
				state.Set(state.AttrMood, string(state.MoodContent)),
			},
		},
		&Prototype{
			Name:                 "CafeCounter",
			RequiredLocationType: LocationCommercial,
			Description:          "Service counter staffed by a barista",
			Verb:                 VerbWorkAt,
			DurationMinutes:      1,
			JobType:              "barista",
			HourlyWage:           intPtr(15),
			MaxWorkers:           1,
			PerHour: []state.Effect{
				state.Delta(state.AttrEnergy, -8, -5),
				state.Delta(state.AttrStress, 1, 3),
			},
		},
		&Prototype{
			Name:                 "ClinicDesk",
			RequiredLocationType: LocationService,
			Description:          "Reception of the community clinic",
			Verb:                 VerbUse,
			Cost:                 intPtr(100),
			ServiceName:          "medical_consultation",
			DurationMinutes:      20,
			Effects: []state.Effect{
				state.Set(state.AttrHealth, string(state.HealthHealthy)),
				state.Delta(state.AttrStress, -20, -5),
			},
		},
		&Prototype{
			Name:                 "CheckoutCounter",
			RequiredLocationType: LocationCommercial,
			Description:          "Supermarket till",
			Verb:                 VerbWorkAt,
			DurationMinutes:      1,
			JobType:              "cashier",
			HourlyWage:           intPtr(12),
			MaxWorkers:           1,
			PerHour: []state.Effect{
				state.Delta(state.AttrEnergy, -10, -6),
				state.Delta(state.AttrStress, 2, 5),
			},
		},
		&Prototype{
			Name:                 "Shelf_Food",
			RequiredLocationType: LocationCommercial,
			Description:          "Groceries",
			Verb:                 VerbBuyFrom,
			DurationMinutes:      5,
			ItemsForSale:         map[string]int{"apple": 2, "bread": 3},
		},
		&Prototype{
			Name:                 "Shelf_Drink",
			RequiredLocationType: LocationCommercial,
			Description:          "Bottled drinks",
			Verb:                 VerbBuyFrom,
			DurationMinutes:      3,
			ItemsForSale:         map[string]int{"water": 1, "juice": 3},
		},
		&Prototype{
			Name:                 "Bench",
			RequiredLocationType: LocationOutdoor,
			Description:          "Park bench",
			Verb:                 VerbSitOn,
			DurationMinutes:      15,
			Effects: []state.Effect{
				state.Delta(state.AttrEnergy, 1, 5),
				state.Delta(state.AttrStress, -10, -1),
			},
		},
	)
}
