package llm

import (
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ErrNoDecision is returned when a response holds no usable action.
var ErrNoDecision = goerr.New("no decision in response")

// Decision is the action a model chose, before validation against the
// action table.
type Decision struct {
	Action    string         `json:"action"`
	Params    map[string]any `json:"parameters,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
}

var (
	actionKeys    = []string{"action", "action_type"}
	paramsKeys    = []string{"parameters", "params"}
	reasoningKeys = []string{"reasoning", "reason", "thought"}
)

// ParseDecision extracts a decision from free model text. Code fences are
// stripped and the outermost {...} is decoded. Parameters may be nested
// under "parameters"/"params" or sit flat next to the action name.
func ParseDecision(text string) (Decision, error) {
	body := stripFences(text)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start == -1 || end <= start {
		return Decision{}, goerr.Wrap(ErrNoDecision, "no JSON object found", goerr.V("response", truncate(text, 200)))
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
		return Decision{}, goerr.Wrap(ErrNoDecision, "invalid decision JSON", goerr.V("error", err.Error()), goerr.V("response", truncate(text, 200)))
	}

	var d Decision
	for _, k := range actionKeys {
		if s, ok := raw[k].(string); ok && strings.TrimSpace(s) != "" {
			d.Action = strings.TrimSpace(s)
			break
		}
	}
	if d.Action == "" {
		return Decision{}, goerr.Wrap(ErrNoDecision, "decision has no action name")
	}
	for _, k := range reasoningKeys {
		if s, ok := raw[k].(string); ok {
			d.Reasoning = s
			break
		}
	}

	for _, k := range paramsKeys {
		if p, ok := raw[k].(map[string]any); ok {
			d.Params = p
			return d, nil
		}
	}

	d.Params = make(map[string]any)
	for k, v := range raw {
		if !isEnvelopeKey(k) {
			d.Params[k] = v
		}
	}
	return d, nil
}

func isEnvelopeKey(k string) bool {
	for _, group := range [][]string{actionKeys, paramsKeys, reasoningKeys} {
		for _, g := range group {
			if k == g {
				return true
			}
		}
	}
	return false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
