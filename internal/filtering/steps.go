package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
)

type locationFilter struct {
	disabled bool
	reason   string
	location string
}

// NewLocation creates a filter that keeps postings in the configured city.
func NewLocation() Filter {
	return &locationFilter{}
}

func (f *locationFilter) Name() string { return "location" }

func (f *locationFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *locationFilter) IsEnabled() bool { return !f.disabled }

func (f *locationFilter) Validate(cfg *Config) error {
	f.location = ""
	if cfg != nil && !AllLocations(cfg.Location) {
		f.location = strings.TrimSpace(cfg.Location)
	}
	return nil
}

func (f *locationFilter) Apply(_ context.Context, deps Deps, results []domain.MatchResult) ([]domain.MatchResult, Step, error) {
	initial := len(results)
	if f.location == "" {
		return results, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	wanted := strings.ToLower(f.location)
	kept, dropped := keep(results, func(p domain.Posting) bool {
		return strings.Contains(strings.ToLower(p.Location), wanted)
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding postings outside the requested location",
			zap.String("location", f.location),
			zap.Strings("excluded_postings", dropped),
			zap.Int("postings_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *locationFilter) Status() Status {
	details := map[string]string{}
	if f.location != "" {
		details["location"] = f.location
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

// AllLocations reports whether location means "no location filter".
func AllLocations(location string) bool {
	switch strings.ToLower(strings.TrimSpace(location)) {
	case "", "all", "toutes", "tout", "toutes les villes":
		return true
	default:
		return false
	}
}

type companiesFilter struct {
	companies []string
}

// NewCompanies creates a filter that removes postings by employers configured in the config.
func NewCompanies() Filter {
	return &companiesFilter{}
}

func (f *companiesFilter) Name() string { return "companies" }

func (f *companiesFilter) Disable(string) {}

func (f *companiesFilter) IsEnabled() bool { return true }

func (f *companiesFilter) Validate(cfg *Config) error {
	f.companies = nil
	if cfg == nil {
		return nil
	}
	for _, c := range cfg.Companies {
		if c = strings.TrimSpace(c); c != "" {
			f.companies = append(f.companies, c)
		}
	}
	return nil
}

func (f *companiesFilter) Apply(_ context.Context, deps Deps, results []domain.MatchResult) ([]domain.MatchResult, Step, error) {
	initial := len(results)
	if len(f.companies) == 0 {
		return results, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	kept, dropped := keep(results, func(p domain.Posting) bool {
		for _, c := range f.companies {
			if strings.EqualFold(strings.TrimSpace(p.Company), c) {
				return false
			}
		}
		return true
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding postings by companies",
			zap.Strings("excluded_companies", f.companies),
			zap.Strings("excluded_postings", dropped),
			zap.Int("postings_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *companiesFilter) Status() Status {
	details := map[string]string{}
	if len(f.companies) > 0 {
		details["companies"] = strings.Join(f.companies, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}

type redFlagsFilter struct {
	flags []string
}

// NewRedFlags creates a filter that removes postings mentioning any configured term.
func NewRedFlags() Filter {
	return &redFlagsFilter{}
}

func (f *redFlagsFilter) Name() string { return "red_flags" }

func (f *redFlagsFilter) Disable(string) {}

func (f *redFlagsFilter) IsEnabled() bool { return true }

func (f *redFlagsFilter) Validate(cfg *Config) error {
	f.flags = nil
	if cfg == nil {
		return nil
	}
	for _, flag := range cfg.RedFlags {
		if flag = strings.ToLower(strings.TrimSpace(flag)); flag != "" {
			f.flags = append(f.flags, flag)
		}
	}
	return nil
}

func (f *redFlagsFilter) Apply(_ context.Context, deps Deps, results []domain.MatchResult) ([]domain.MatchResult, Step, error) {
	initial := len(results)
	if len(f.flags) == 0 {
		return results, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	kept, dropped := keep(results, func(p domain.Posting) bool {
		return !ContainsRedFlag(p, f.flags)
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding postings with red flags",
			zap.Strings("excluded_postings", dropped),
			zap.Int("postings_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *redFlagsFilter) Status() Status {
	details := map[string]string{}
	if len(f.flags) > 0 {
		details["red_flags"] = strings.Join(f.flags, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}

// ContainsRedFlag reports whether any lower-cased flag appears in the posting's
// title, company or description.
func ContainsRedFlag(p domain.Posting, flags []string) bool {
	haystack := strings.ToLower(p.Title + " " + p.Company + " " + p.Description)
	for _, flag := range flags {
		if strings.Contains(haystack, flag) {
			return true
		}
	}
	return false
}
