// Package program defines the snippet record model, the local store, and
// the merge engine used to reconcile local and remote record sets.
package program

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Program represents one saved code snippet.
// Fields use last-write-wins semantics: UpdatedAt resolves conflicts when
// the same record was modified on more than one device.
type Program struct {
	// ===== Core Identification =====
	ID string `json:"id" yaml:"id"`

	// ===== Content =====
	Title       string `json:"title" yaml:"title"`
	Language    string `json:"language" yaml:"language"`
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`

	// ===== Tags & Classification =====
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// ===== Timestamps (conflict resolution) =====
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Draft holds the user-editable fields of a program. The orchestrator turns
// a draft into a full Program by assigning ID and timestamps.
type Draft struct {
	Title       string
	Language    string
	Code        string
	Description string
	URL         string
	Tags        []string
}

// New builds a Program from a draft, assigning a fresh ID and timestamps.
func New(d Draft) (Program, error) {
	now := time.Now().UTC()
	p := Program{
		ID:          GenerateID(),
		Title:       strings.TrimSpace(d.Title),
		Language:    strings.TrimSpace(d.Language),
		Code:        d.Code,
		Description: strings.TrimSpace(d.Description),
		URL:         strings.TrimSpace(d.URL),
		Tags:        cleanTags(d.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return Program{}, err
	}
	return p, nil
}

// GenerateID returns a new globally unique program ID: the current unix
// milliseconds in base36 followed by a random base36 suffix.
func GenerateID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36) +
		strconv.FormatInt(rand.Int63(), 36)
}

// Validate checks that the program has valid field values.
func (p *Program) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Language == "" {
		return fmt.Errorf("language is required")
	}
	if p.Code == "" {
		return fmt.Errorf("code is required")
	}
	for i, tag := range p.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("tag %d is empty", i)
		}
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt is required")
	}
	if p.UpdatedAt.IsZero() {
		return fmt.Errorf("updatedAt is required")
	}
	return nil
}

// Apply overwrites the editable fields from a draft and advances UpdatedAt.
// ID and CreatedAt are immutable.
func (p *Program) Apply(d Draft) error {
	updated := *p
	updated.Title = strings.TrimSpace(d.Title)
	updated.Language = strings.TrimSpace(d.Language)
	updated.Code = d.Code
	updated.Description = strings.TrimSpace(d.Description)
	updated.URL = strings.TrimSpace(d.URL)
	updated.Tags = cleanTags(d.Tags)
	updated.UpdatedAt = time.Now().UTC()
	if err := updated.Validate(); err != nil {
		return err
	}
	*p = updated
	return nil
}

// Clone returns a deep copy of the program.
// Tags are copied so the clone shares no mutable state with the original.
func (p Program) Clone() Program {
	out := p
	if p.Tags != nil {
		out.Tags = make([]string, len(p.Tags))
		copy(out.Tags, p.Tags)
	}
	return out
}

// ParseTags splits a comma-separated tag string into a clean tag slice.
// Empty entries are dropped; duplicates are preserved.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return cleanTags(strings.Split(s, ","))
}

func cleanTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SortByCreatedAt orders programs newest-first for display.
// Ties break on ID so the ordering is deterministic.
func SortByCreatedAt(programs []Program) {
	sort.SliceStable(programs, func(i, j int) bool {
		if programs[i].CreatedAt.Equal(programs[j].CreatedAt) {
			return programs[i].ID < programs[j].ID
		}
		return programs[i].CreatedAt.After(programs[j].CreatedAt)
	})
}

// IDSet returns the set of IDs present in the given programs.
func IDSet(programs []Program) map[string]struct{} {
	ids := make(map[string]struct{}, len(programs))
	for _, p := range programs {
		ids[p.ID] = struct{}{}
	}
	return ids
}
