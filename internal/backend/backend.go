// Package backend provides a unified interface for remote snippet storage.
//
// Three variants exist: a plain REST API, GitHub Gists, and a Supabase
// Postgres table. The design follows a strategy pattern: each variant
// registers a constructor at init time, callers build backends from a
// tagged Config, and no caller ever branches on the concrete type.
//
// # Usage
//
//	b, err := backend.New(backend.Config{
//	    Type:    backend.TypeSupabase,
//	    BaseURL: "https://xyz.supabase.co",
//	    Token:   key,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := b.TestConnection(ctx); err != nil {
//	    return err
//	}
//	programs, err := b.FetchAll(ctx)
//
// # Capabilities
//
// All variants implement the five core operations. Variants with change
// detection additionally implement Realtimer (push) or ChangePoller
// (changed-since polling); callers discover these with type assertions.
package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/codej/codej/internal/program"
)

// Type identifies a backend variant.
type Type string

const (
	// TypeREST is a stateless HTTP CRUD API.
	TypeREST Type = "rest"

	// TypeGist stores the whole record set as one JSON blob in a
	// GitHub gist.
	TypeGist Type = "gist"

	// TypeSupabase is a hosted Postgres table with optional realtime
	// change notifications.
	TypeSupabase Type = "supabase"
)

// String returns the string representation of the backend type.
func (t Type) String() string {
	return string(t)
}

// Config carries everything needed to construct a backend.
type Config struct {
	// Type selects the variant.
	Type Type

	// BaseURL is the API endpoint: the full CRUD URL for REST, the
	// project URL for Supabase, and the API root for Gist (defaults
	// to https://api.github.com when empty).
	BaseURL string

	// Token is the shared secret: an API key for Supabase, a personal
	// access token for Gist. REST may leave it empty.
	Token string

	// GistID identifies the gist container once assigned. Empty until
	// the first write creates the container.
	GistID string

	// PersistGistID is invoked once when the Gist variant creates its
	// container, so the ID survives across sessions. Optional.
	PersistGistID func(id string) error

	// HTTPClient overrides the default client. Used by tests.
	HTTPClient *http.Client
}

// Backend defines the capability set shared by all variants.
//
// Every operation takes a context and returns errors from this package's
// taxonomy (ErrAuth, ErrNotFound, ErrNetwork, ErrUnsupported,
// ErrTableMissing), wrapped in *Error with operation context.
type Backend interface {
	// Name returns the variant type.
	Name() Type

	// TestConnection verifies the endpoint and credential without
	// mutating anything. Called before a connection is committed.
	TestConnection(ctx context.Context) error

	// FetchAll returns the complete remote record set.
	FetchAll(ctx context.Context) ([]program.Program, error)

	// Create stores a new record and returns the remote ID. Backends
	// that assign their own IDs return one that differs from p.ID;
	// the caller must adopt it.
	Create(ctx context.Context, p program.Program) (string, error)

	// Update replaces the remote record with the given ID.
	Update(ctx context.Context, id string, p program.Program) error

	// Delete removes the remote record with the given ID. Deleting an
	// absent record is idempotent for whole-blob variants and returns
	// ErrNotFound for per-record variants.
	Delete(ctx context.Context, id string) error
}

// Realtimer is implemented by backends that can push change notifications
// over a long-lived channel.
type Realtimer interface {
	// Subscribe opens the push channel. The subscription delivers one
	// signal per remote change batch and reports channel failure via
	// Done/Err so the caller can fall back to polling.
	Subscribe(ctx context.Context) (*Subscription, error)
}

// ChangePoller is implemented by backends that can report how many remote
// records changed after a given time, enabling cheap poll-based change
// detection without a full fetch.
type ChangePoller interface {
	ChangedSince(ctx context.Context, since time.Time) (int, error)
}

const defaultHTTPTimeout = 15 * time.Second

func httpClient(cfg Config) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}
