// Package filtering narrows retrieval results after the similarity search.
// Filters only drop results; they never reorder them.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
)

// Filter represents a single filtering step applied to match results.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, results []domain.MatchResult) ([]domain.MatchResult, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains configuration settings consumed by the filters.
type Config struct {
	// Location keeps postings whose location contains it. Empty, "all" and "toutes" keep everything.
	Location string
	// Companies lists employers whose postings are dropped.
	Companies []string
	// RedFlags lists terms that drop a posting when found in its title, company or description.
	RedFlags []string
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Default returns the filters in the order they run.
func Default() []Filter {
	return []Filter{NewLocation(), NewCompanies(), NewRedFlags()}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially and returns what is left.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, results []domain.MatchResult) ([]domain.MatchResult, error) {
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			if deps.Logger != nil {
				deps.Logger.Info("filter disabled", zap.String("name", step.Name()))
			}
			continue
		}

		next, info, err := step.Apply(ctx, deps, results)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if deps.Logger != nil {
			deps.Logger.Info("filter step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		results = next
	}

	return results, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// keep returns the results for which pass is true, preserving order, and the dropped titles.
func keep(results []domain.MatchResult, pass func(domain.Posting) bool) ([]domain.MatchResult, []string) {
	kept := make([]domain.MatchResult, 0, len(results))
	var dropped []string
	for _, r := range results {
		if pass(r.Posting) {
			kept = append(kept, r)
			continue
		}
		dropped = append(dropped, r.Posting.Title)
	}
	return kept, dropped
}
