package program

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when a program ID is not present in the store.
var ErrNotFound = errors.New("program not found")

// Store is the authoritative on-device record set.
//
// The full set is serialized as one JSON array and written wholesale on
// every mutation, so the store survives offline and a crash can never leave
// a partially written record. All mutations are atomic in-memory
// replace-or-splice operations guarded by a mutex; no intermediate state is
// ever observable.
type Store struct {
	mu       sync.Mutex
	path     string
	programs []Program
}

// Open loads the store from path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the store's backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.programs = nil
			return nil
		}
		return fmt.Errorf("failed to read store file %s: %w", s.path, err)
	}

	var programs []Program
	if err := json.Unmarshal(data, &programs); err != nil {
		return fmt.Errorf("failed to parse store file %s: %w", s.path, err)
	}
	SortByCreatedAt(programs)
	s.programs = programs
	return nil
}

// Reload re-reads the backing file, discarding the in-memory set.
// Used by the daemon when another process has written the store file.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// save writes the full record set to disk via a temp file and rename, so
// readers never observe a half-written store.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(s.programs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal programs: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// List returns a copy of all programs, newest-first by CreatedAt.
func (s *Store) List() []Program {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Program, 0, len(s.programs))
	for _, p := range s.programs {
		out = append(out, p.Clone())
	}
	return out
}

// Get returns the program with the given ID.
func (s *Store) Get(id string) (Program, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.programs {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return Program{}, false
}

// Len returns the number of stored programs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.programs)
}

// Add inserts a new program and persists the set.
func (s *Store) Add(p Program) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("cannot store invalid program: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.programs {
		if existing.ID == p.ID {
			return fmt.Errorf("program %s already exists", p.ID)
		}
	}
	s.programs = append([]Program{p.Clone()}, s.programs...)
	SortByCreatedAt(s.programs)
	return s.save()
}

// Update replaces the stored program with the same ID and persists the set.
// Returns ErrNotFound if the ID is absent.
func (s *Store) Update(p Program) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("cannot store invalid program: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.programs {
		if existing.ID == p.ID {
			s.programs[i] = p.Clone()
			return s.save()
		}
	}
	return fmt.Errorf("updating program %s: %w", p.ID, ErrNotFound)
}

// Delete removes the program with the given ID and persists the set.
// Deleting an absent ID is a no-op, not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.programs {
		if existing.ID == id {
			s.programs = append(s.programs[:i], s.programs[i+1:]...)
			return s.save()
		}
	}
	return nil
}

// Rename changes a program's ID in place, preserving all other fields.
// Used when a backend assigns its own ID on create and the local record
// must adopt it. Renaming an absent ID returns ErrNotFound.
func (s *Store) Rename(oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.programs {
		if existing.ID == oldID {
			s.programs[i].ID = newID
			return s.save()
		}
	}
	return fmt.Errorf("renaming program %s: %w", oldID, ErrNotFound)
}

// Replace overwrites the entire record set with the given programs and
// persists it. This is the destructive overwrite used by the reconciliation
// pass and by import; callers are expected to pass a merged or confirmed set.
func (s *Store) Replace(programs []Program) error {
	for _, p := range programs {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("cannot store invalid program %s: %w", p.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make([]Program, 0, len(programs))
	for _, p := range programs {
		replacement = append(replacement, p.Clone())
	}
	SortByCreatedAt(replacement)
	s.programs = replacement
	return s.save()
}
