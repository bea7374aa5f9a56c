// Daily bulletin: turns a day of town events into a short newsletter.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
)

// maxBulletinLines caps how many events go into one prompt or fallback.
const maxBulletinLines = 40

// BulletinData is the raw material for one day's bulletin.
type BulletinData struct {
	Day        string
	Season     string
	Population int
	Actions    uint64
	Failures   uint64
	AvgMoney   float64
	Moods      map[string]int
	// Events are one-line descriptions, oldest first.
	Events []string
}

const bulletinSystem = `You write the daily bulletin pinned to the noticeboard of a small
apartment community. Summarise the day warmly and briefly (under 200 words):
who did what, who met whom, anything unusual. Use residents' names. Do not
invent events that are not listed.`

const bulletinTemplate = `Day: {{ .Day }} ({{ .Season }})
Residents: {{ .Population }}. Actions today: {{ .Actions }} ({{ .Failures }} went wrong).
Average savings: {{ printf "%.0f" .AvgMoney }}.
{{- with .Moods }}
Moods: {{ range $i, $m := moodList . }}{{ if $i }}, {{ end }}{{ $m }}{{ end }}
{{- end }}

What happened:
{{- range .Events }}
- {{ . | trunc 200 }}
{{- else }}
- a quiet day; nothing notable
{{- end }}

Write today's bulletin.`

var bulletinTmpl = template.Must(template.New("bulletin").
	Funcs(templateFuncs).
	Funcs(template.FuncMap{"moodList": moodList}).
	Parse(bulletinTemplate))

func moodList(moods map[string]int) []string {
	out := make([]string, 0, len(moods))
	for m, n := range moods {
		out = append(out, fmt.Sprintf("%s %d", m, n))
	}
	sort.Strings(out)
	return out
}

// Bulletin writes daily bulletins, through a model when one is configured.
type Bulletin struct {
	completer Completer
}

// NewBulletin creates a bulletin writer. A nil completer always uses the
// plain-text fallback.
func NewBulletin(c Completer) *Bulletin {
	return &Bulletin{completer: c}
}

// Write returns the bulletin text. Model failures fall back to plain text;
// only template errors are returned.
func (b *Bulletin) Write(ctx context.Context, data *BulletinData) (string, error) {
	trimmed := *data
	if len(trimmed.Events) > maxBulletinLines {
		trimmed.Events = trimmed.Events[len(trimmed.Events)-maxBulletinLines:]
	}

	if b.completer == nil {
		return FallbackBulletin(&trimmed), nil
	}

	var prompt bytes.Buffer
	if err := bulletinTmpl.Execute(&prompt, &trimmed); err != nil {
		return "", goerr.Wrap(err, "failed to render bulletin prompt", goerr.V("day", data.Day))
	}
	text, err := b.completer.Complete(ctx, bulletinSystem, prompt.String())
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("bulletin model call failed, using plain text", "day", data.Day, "error", err)
		return FallbackBulletin(&trimmed), nil
	}
	return strings.TrimSpace(text), nil
}

// FallbackBulletin lays the day out as plain text without a model.
func FallbackBulletin(data *BulletinData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "TOWN BULLETIN\n")
	fmt.Fprintf(&b, "%s (%s)\n\n", data.Day, data.Season)
	fmt.Fprintf(&b, "%d residents, %d actions, %d went wrong.\n", data.Population, data.Actions, data.Failures)
	fmt.Fprintf(&b, "Average savings: %.0f.\n", data.AvgMoney)
	if len(data.Moods) > 0 {
		fmt.Fprintf(&b, "Moods: %s.\n", strings.Join(moodList(data.Moods), ", "))
	}

	if len(data.Events) == 0 {
		b.WriteString("\nA quiet day.\n")
		return b.String()
	}
	b.WriteString("\nTODAY\n")
	shown := data.Events
	if len(shown) > 10 {
		shown = shown[len(shown)-10:]
	}
	for _, e := range shown {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	if extra := len(data.Events) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "...and %d earlier.\n", extra)
	}
	return b.String()
}
