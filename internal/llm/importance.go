package llm

import (
	"context"
	"regexp"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
)

const importanceSystem = `You rate how important a memory is to the person who holds it.
Consider its likely effect on their long-term goals, relationships and self-image.
Answer with a single integer from 1 (trivial) to 10 (life-changing) and nothing else.`

var firstInt = regexp.MustCompile(`-?\d+`)

// ImportanceEstimator scores memories with a model.
type ImportanceEstimator struct {
	completer Completer
}

func NewImportanceEstimator(c Completer) *ImportanceEstimator {
	return &ImportanceEstimator{completer: c}
}

// EstimateImportance returns the model's 1-10 score. The caller clamps and
// falls back on error.
func (e *ImportanceEstimator) EstimateImportance(ctx context.Context, content string) (int, error) {
	text, err := e.completer.Complete(ctx, importanceSystem, "Memory: "+strconv.Quote(content)+"\nImportance:")
	if err != nil {
		return 0, goerr.Wrap(err, "importance call failed")
	}
	m := firstInt.FindString(text)
	if m == "" {
		return 0, goerr.New("no integer in importance response", goerr.V("response", truncate(text, 100)))
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid importance value", goerr.V("value", m))
	}
	return v, nil
}
