package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codej/codej/internal/program"
)

func restFixtureRow(id string) restProgram {
	return restProgram{
		ID:        id,
		Title:     "snippet " + id,
		Language:  "go",
		Code:      "package main",
		Tags:      []string{"test"},
		CreatedAt: "2024-06-01T10:00:00Z",
		UpdatedAt: "2024-06-01 12:30:00",
	}
}

func newRESTBackend(t *testing.T, url string) Backend {
	t.Helper()
	b, err := New(Config{Type: TypeREST, BaseURL: url})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return b
}

// TestREST_FetchAll verifies decoding of the envelope and both accepted
// timestamp layouts.
func TestREST_FetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    []restProgram{restFixtureRow("a"), restFixtureRow("b")},
		})
	}))
	defer srv.Close()

	b := newRESTBackend(t, srv.URL)
	programs, err := b.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if len(programs) != 2 {
		t.Fatalf("FetchAll() = %d programs, want 2", len(programs))
	}
	wantCreated := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if !programs[0].CreatedAt.Equal(wantCreated) {
		t.Errorf("createdAt = %v, want %v", programs[0].CreatedAt, wantCreated)
	}
	if programs[0].UpdatedAt.IsZero() {
		t.Error("SQL-style updated_at did not parse")
	}
}

// TestREST_Create verifies the server-assigned ID is returned.
func TestREST_Create(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var row restProgram
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if row.Tags == nil {
			t.Error("tags were omitted instead of an empty array")
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "id": "server-id"})
	}))
	defer srv.Close()

	b := newRESTBackend(t, srv.URL)
	p := program.Program{ID: "local-id", Title: "t", Language: "go", Code: "x",
		CreatedAt: time.Now(), UpdatedAt: time.Now()}
	id, err := b.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if id != "server-id" {
		t.Errorf("Create() = %q, want server-id", id)
	}
}

// TestREST_UpdateDelete verifies the id query parameter addressing.
func TestREST_UpdateDelete(t *testing.T) {
	var gotMethod, gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotID = r.URL.Query().Get("id")
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	b := newRESTBackend(t, srv.URL)
	p := program.Program{ID: "a b", Title: "t", Language: "go", Code: "x",
		CreatedAt: time.Now(), UpdatedAt: time.Now()}

	if err := b.Update(context.Background(), "a b", p); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if gotMethod != http.MethodPut || gotID != "a b" {
		t.Errorf("Update() sent %s id=%q, want PUT id=\"a b\"", gotMethod, gotID)
	}

	if err := b.Delete(context.Background(), "a b"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if gotMethod != http.MethodDelete || gotID != "a b" {
		t.Errorf("Delete() sent %s id=%q, want DELETE id=\"a b\"", gotMethod, gotID)
	}
}

// TestREST_ErrorMapping verifies HTTP statuses map onto the taxonomy.
func TestREST_ErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusForbidden, ErrAuth},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusInternalServerError, ErrNetwork},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		b := newRESTBackend(t, srv.URL)
		err := b.TestConnection(context.Background())
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d mapped to %v, want %v", tc.status, err, tc.want)
		}
	}
}

// TestREST_EnvelopeFailure verifies success=false responses are errors
// carrying the server's message.
func TestREST_EnvelopeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "db on fire"})
	}))
	defer srv.Close()

	b := newRESTBackend(t, srv.URL)
	_, err := b.FetchAll(context.Background())
	if err == nil {
		t.Fatal("FetchAll() accepted success=false")
	}
	var be *Error
	if !errors.As(err, &be) || be.Detail != "db on fire" {
		t.Errorf("error did not carry server message: %v", err)
	}
}

// TestREST_TransportFailure verifies connection errors map to ErrNetwork.
func TestREST_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	b := newRESTBackend(t, srv.URL)
	if err := b.TestConnection(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Errorf("transport failure mapped to %v, want ErrNetwork", err)
	}
}
