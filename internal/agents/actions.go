package agents

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/mini-town/internal/llm"
)

var (
	ErrUnknownAction = goerr.New("unknown action")
	ErrBadParams     = goerr.New("invalid action parameters")
)

// Kind enumerates every action an agent can take.
type Kind uint8

const (
	KindWait Kind = iota
	KindSpeak
	KindMoveTo
	KindUseObject
	KindWork
	KindGardening
	KindWalk
	KindListen
	KindHangOut
	KindEat
	KindSleep
	KindShower
	KindBuy
	KindTakeBus
	KindLeaveCommunity
)

// Well-known places some actions are tied to.
const (
	PlaceRooftop      = "Rooftop"
	PlaceWalkingPath  = "Walking_Path"
	PlacePark         = "Park"
	PlaceCafe         = "Cafe"
	PlaceBusStop      = "Bus_Stop"
	PlaceHighway      = "Highway"
	PlaceLeft         = "Left_Community"
	transitPrefix     = "In_Transit_to_"
	leaveDestination  = "Leave_Community"
	methodDrive       = "Drive"
	methodBus         = "Bus"
	defaultWorkLength = 60
)

// Action is a parsed, validated action. Which fields are meaningful
// depends on Kind.
type Action struct {
	Kind    Kind     `json:"kind"`
	Minutes int      `json:"minutes"`
	Target  string   `json:"target,omitempty"`  // location, object, agent, item, job, path, destination or method
	Targets []string `json:"targets,omitempty"` // HangOut companions
	Message string   `json:"message,omitempty"`
	Qty     int      `json:"quantity,omitempty"`
}

// kindSpec is one row of the action table.
type kindSpec struct {
	kind        Kind
	name        string
	minutes     int // default duration
	minMinutes  int
	params      string
	description string
	build       func(p params, act *Action) error
}

var kindTable = []kindSpec{
	{KindWait, "Wait", 1, 1, "duration_minutes", "do nothing for a while", nil},
	{KindSpeak, "Speak", 2, 1, "message, target_agent_id?", "say something, to someone here or to yourself", func(p params, a *Action) error {
		msg, err := p.str("message", true)
		a.Message = msg
		a.Target, _ = p.str("target_agent_id", false)
		return err
	}},
	{KindMoveTo, "MoveTo", 5, 1, "target_location", "walk to another location", func(p params, a *Action) error {
		var err error
		a.Target, err = p.str("target_location", true)
		return err
	}},
	{KindUseObject, "UseObject", 5, 1, "object_name", "use an object at your location", func(p params, a *Action) error {
		var err error
		a.Target, err = p.str("object_name", true)
		return err
	}},
	{KindWork, "Work", defaultWorkLength, 1, "job_type, duration_minutes?", "work a shift at a job offered here", func(p params, a *Action) error {
		var err error
		a.Target, err = p.str("job_type", true)
		return err
	}},
	{KindGardening, "Gardening", 30, 10, "duration_minutes?", "tend the rooftop garden", nil},
	{KindWalk, "Walk", 20, 5, "path_name?", "go for a walk on the path or in the park", func(p params, a *Action) error {
		a.Target, _ = p.str("path_name", false)
		if a.Target == "" {
			a.Target = PlaceWalkingPath
		}
		return nil
	}},
	{KindListen, "Listen", 3, 1, "target_agent_id", "listen to someone here", func(p params, a *Action) error {
		var err error
		a.Target, err = p.str("target_agent_id", true)
		return err
	}},
	{KindHangOut, "HangOut", 30, 10, "target_agent_ids", "spend time with people here", func(p params, a *Action) error {
		var err error
		a.Targets, err = p.strs("target_agent_ids")
		return err
	}},
	{KindEat, "Eat", 15, 5, "", "eat a meal at home or at the cafe", nil},
	{KindSleep, "Sleep", 480, 60, "duration_minutes?", "sleep at home", nil},
	{KindShower, "Shower", 10, 5, "", "shower at home", nil},
	{KindBuy, "Buy", 10, 3, "item_name, quantity?", "buy something sold here", func(p params, a *Action) error {
		var err error
		if a.Target, err = p.str("item_name", true); err != nil {
			return err
		}
		a.Qty, err = p.num("quantity", 1)
		if err == nil && a.Qty < 1 {
			err = goerr.Wrap(ErrBadParams, "quantity must be positive", goerr.V("quantity", a.Qty))
		}
		return err
	}},
	{KindTakeBus, "TakeBus", 20, 10, "destination", "take the bus from the bus stop", func(p params, a *Action) error {
		var err error
		a.Target, err = p.str("destination", true)
		return err
	}},
	{KindLeaveCommunity, "LeaveCommunity", 5, 1, "method?", "leave town by Drive from the highway or by Bus from the bus stop", func(p params, a *Action) error {
		a.Target, _ = p.str("method", false)
		if a.Target == "" {
			a.Target = methodDrive
		}
		return nil
	}},
}

var kindsByName = func() map[string]*kindSpec {
	m := make(map[string]*kindSpec, len(kindTable))
	for i := range kindTable {
		m[strings.ToLower(kindTable[i].name)] = &kindTable[i]
	}
	return m
}()

func (k Kind) spec() *kindSpec {
	if int(k) < len(kindTable) {
		return &kindTable[k]
	}
	return nil
}

func (k Kind) String() string {
	if s := k.spec(); s != nil {
		return s.name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// DefaultMinutes returns the duration used when none is given.
func (k Kind) DefaultMinutes() int {
	if s := k.spec(); s != nil {
		return s.minutes
	}
	return 1
}

// Wait returns a wait of n minutes (at least one).
func Wait(n int) Action {
	if n < 1 {
		n = 1
	}
	return Action{Kind: KindWait, Minutes: n}
}

// Fallback is what an agent does when anything in its cycle goes wrong.
func Fallback() Action { return Wait(1) }

// MaxActionMinutes is the longest duration a decision may ask for.
const MaxActionMinutes = 24 * 60

// ParseAction maps a decision's action name and parameters onto the action
// table. Names match case-insensitively. An explicit duration_minutes
// overrides the default but must lie between the action's minimum and
// MaxActionMinutes.
func ParseAction(name string, raw map[string]any) (Action, error) {
	spec, ok := kindsByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Action{}, goerr.Wrap(ErrUnknownAction, "action not in table", goerr.V("name", name))
	}
	p := params(raw)
	act := Action{Kind: spec.kind}

	minutes, err := p.num("duration_minutes", spec.minutes)
	if err != nil {
		return Action{}, err
	}
	if minutes < spec.minMinutes {
		return Action{}, goerr.Wrap(ErrBadParams, "duration below minimum",
			goerr.V("action", spec.name), goerr.V("minutes", minutes), goerr.V("min", spec.minMinutes))
	}
	if minutes > MaxActionMinutes {
		return Action{}, goerr.Wrap(ErrBadParams, "duration above maximum",
			goerr.V("action", spec.name), goerr.V("minutes", minutes), goerr.V("max", MaxActionMinutes))
	}
	act.Minutes = minutes

	if spec.build != nil {
		if err := spec.build(p, &act); err != nil {
			return Action{}, goerr.Wrap(err, "failed to build action", goerr.V("action", spec.name))
		}
	}
	return act, nil
}

// FromDecision parses a model decision into an action.
func FromDecision(d llm.Decision) (Action, error) {
	return ParseAction(d.Action, d.Params)
}

// Help lists every action for prompts.
func Help() []llm.ActionHelp {
	out := make([]llm.ActionHelp, len(kindTable))
	for i, s := range kindTable {
		out[i] = llm.ActionHelp{Name: s.name, Params: s.params, Description: s.description}
	}
	return out
}

// ActionNames returns the table's action names, sorted.
func ActionNames() []string {
	names := make([]string, len(kindTable))
	for i, s := range kindTable {
		names[i] = s.name
	}
	sort.Strings(names)
	return names
}

func (a Action) String() string {
	var b strings.Builder
	b.WriteString(a.Kind.String())
	switch {
	case len(a.Targets) > 0:
		fmt.Fprintf(&b, "(%s)", strings.Join(a.Targets, ","))
	case a.Target != "" && a.Qty > 0:
		fmt.Fprintf(&b, "(%s x%d)", a.Target, a.Qty)
	case a.Target != "":
		fmt.Fprintf(&b, "(%s)", a.Target)
	}
	fmt.Fprintf(&b, " %dm", a.Minutes)
	return b.String()
}

// params reads loosely typed decision parameters.
type params map[string]any

func (p params) str(key string, required bool) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		if required {
			return "", goerr.Wrap(ErrBadParams, "missing parameter", goerr.V("key", key))
		}
		return "", nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64, int, bool:
		s = fmt.Sprint(t)
	default:
		return "", goerr.Wrap(ErrBadParams, "parameter is not a string", goerr.V("key", key))
	}
	if s == "" && required {
		return "", goerr.Wrap(ErrBadParams, "empty parameter", goerr.V("key", key))
	}
	return s, nil
}

func (p params) num(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, goerr.Wrap(ErrBadParams, "parameter is not an integer", goerr.V("key", key), goerr.V("value", t))
		}
		if math.Abs(t) > math.MaxInt32 {
			return 0, goerr.Wrap(ErrBadParams, "parameter out of range", goerr.V("key", key), goerr.V("value", t))
		}
		return int(t), nil
	case int:
		return t, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, goerr.Wrap(ErrBadParams, "parameter is not an integer", goerr.V("key", key), goerr.V("value", t))
		}
		return n, nil
	}
	return 0, goerr.Wrap(ErrBadParams, "parameter is not an integer", goerr.V("key", key))
}

// strs accepts a JSON array or a comma-separated string.
func (p params) strs(key string) ([]string, error) {
	var out []string
	switch t := p[key].(type) {
	case []any:
		for _, v := range t {
			s, ok := v.(string)
			if !ok {
				return nil, goerr.Wrap(ErrBadParams, "list element is not a string", goerr.V("key", key))
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil, goerr.Wrap(ErrBadParams, "missing list parameter", goerr.V("key", key))
	}
	return out, nil
}
