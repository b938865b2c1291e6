package filter

import (
	"strings"

	"github.com/amishk599/recsmoke/internal/model"
)

// OutcomeFilter matches runs whose outcome is in a configured set.
// Matching is case-insensitive. An empty set matches every run.
type OutcomeFilter struct {
	outcomes map[model.Outcome]struct{}
}

// NewOutcomeFilter returns a filter accepting the given outcomes.
func NewOutcomeFilter(outcomes []string) *OutcomeFilter {
	set := make(map[model.Outcome]struct{}, len(outcomes))
	for _, o := range outcomes {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "" {
			continue
		}
		set[model.Outcome(o)] = struct{}{}
	}
	return &OutcomeFilter{outcomes: set}
}

// Match returns true if the run's outcome is in the set.
func (f *OutcomeFilter) Match(run model.Run) bool {
	if len(f.outcomes) == 0 {
		return true
	}
	_, ok := f.outcomes[run.Outcome]
	return ok
}
