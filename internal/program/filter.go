package program

import (
	"strings"
	"time"
)

// Filter selects a subset of programs for display.
// Zero-valued fields match everything.
type Filter struct {
	// Query matches case-insensitively against title, description,
	// language, and tags.
	Query string

	// Language restricts results to an exact language match.
	Language string

	// Since restricts results to programs updated after the given time.
	Since time.Time
}

// Apply returns the programs matching the filter, preserving input order.
func (f Filter) Apply(programs []Program) []Program {
	query := strings.ToLower(strings.TrimSpace(f.Query))

	var out []Program
	for _, p := range programs {
		if f.Language != "" && p.Language != f.Language {
			continue
		}
		if !f.Since.IsZero() && !p.UpdatedAt.After(f.Since) {
			continue
		}
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesQuery(p Program, query string) bool {
	if strings.Contains(strings.ToLower(p.Title), query) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Description), query) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Language), query) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
