package llm

import (
	"bytes"
	"context"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/mini-town/internal/state"
)

// ActionHelp describes one action the model may choose.
type ActionHelp struct {
	Name        string
	Params      string
	Description string
}

// Neighbor is another agent at the same location.
type Neighbor struct {
	ID   string
	Name string
}

// Exit is a directly connected location and its walking time.
type Exit struct {
	Name    string
	Minutes int
}

// Acquaintance is one relationship as the agent sees it.
type Acquaintance struct {
	ID          string
	Name        string
	Affinity    int
	Familiarity int
}

// DecisionContext is everything an agent knows when deciding what to do.
type DecisionContext struct {
	AgentID  string
	Name     string
	Persona  string
	Home     string
	Time     string
	Season   string
	Daytime  bool
	Location string
	// LocationDescription is free text from the map data.
	LocationDescription string
	State               state.Internal

	Nearby        []Neighbor
	Objects       []string
	Exits         []Exit
	OpenJobs      map[string][]string // location -> job types with a free slot
	Memories      []string
	Relationships []Acquaintance
	Actions       []ActionHelp
}

var templateFuncs = sprig.TxtFuncMap()

const systemTemplate = `You are {{ .Name }}, a resident of a small apartment community.
{{ .Persona | trim }}

Stay in character. Choose exactly one next action that fits your needs,
your personality and what is possible where you are.

Respond ONLY with a JSON object:
{"action": "<ActionName>", "parameters": {...}, "reasoning": "<one sentence>"}

Available actions:
{{- range .Actions }}
- {{ .Name }}{{ if .Params }}({{ .Params }}){{ end }}: {{ .Description }}
{{- end }}`

const userTemplate = `It is {{ .Time }} ({{ .Season }}, {{ if .Daytime }}daytime{{ else }}night{{ end }}).
You are at {{ .Location }}{{ with .LocationDescription }}: {{ . }}{{ end }}.

Your condition: mood {{ .State.Mood }}, health {{ .State.Health }}, energy {{ .State.Energy }}/100,
hunger {{ .State.Hunger }}/100, stress {{ .State.Stress }}/100, social need {{ .State.SocialNeed }}/100,
hygiene {{ .State.Hygiene }}/100, laundry need {{ .State.LaundryNeed }}/100, money {{ .State.Money }}.
{{- with .Home }}
Your home is {{ . }}.
{{- end }}

People here: {{ range $i, $n := .Nearby }}{{ if $i }}, {{ end }}{{ $n.Name }} (id {{ $n.ID }}){{ else }}nobody{{ end }}
Objects here: {{ if .Objects }}{{ join ", " .Objects }}{{ else }}none{{ end }}
You can walk to: {{ range $i, $e := .Exits }}{{ if $i }}, {{ end }}{{ $e.Name }} ({{ $e.Minutes }} min){{ else }}nowhere{{ end }}
{{- with .OpenJobs }}

Open jobs:
{{- range $loc, $jobs := . }}
- {{ $loc }}: {{ join ", " $jobs }}
{{- end }}
{{- end }}
{{- with .Relationships }}

People you know:
{{- range . }}
- {{ .Name }} (id {{ .ID }}): affinity {{ .Affinity }}, familiarity {{ .Familiarity }}
{{- end }}
{{- end }}
{{- with .Memories }}

Relevant memories:
{{- range . }}
- {{ . | trunc 300 }}
{{- end }}
{{- end }}

What do you do next?`

var (
	systemTmpl = template.Must(template.New("system").Funcs(templateFuncs).Parse(systemTemplate))
	userTmpl   = template.Must(template.New("user").Funcs(templateFuncs).Parse(userTemplate))
)

// BuildPrompts renders the system and user prompts for a decision.
func BuildPrompts(dc *DecisionContext) (string, string, error) {
	var sys, usr bytes.Buffer
	if err := systemTmpl.Execute(&sys, dc); err != nil {
		return "", "", goerr.Wrap(err, "failed to render system prompt", goerr.V("agent", dc.AgentID))
	}
	if err := userTmpl.Execute(&usr, dc); err != nil {
		return "", "", goerr.Wrap(err, "failed to render user prompt", goerr.V("agent", dc.AgentID))
	}
	return sys.String(), usr.String(), nil
}

// DecisionProvider asks a model what an agent should do.
type DecisionProvider struct {
	completer Completer
}

func NewDecisionProvider(c Completer) *DecisionProvider {
	return &DecisionProvider{completer: c}
}

// Decide renders the prompts, calls the model and parses its answer.
func (p *DecisionProvider) Decide(ctx context.Context, dc *DecisionContext) (Decision, error) {
	system, user, err := BuildPrompts(dc)
	if err != nil {
		return Decision{}, err
	}
	text, err := p.completer.Complete(ctx, system, user)
	if err != nil {
		return Decision{}, goerr.Wrap(err, "decision call failed", goerr.V("agent", dc.AgentID))
	}
	return ParseDecision(text)
}
