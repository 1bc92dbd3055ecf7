package backend

import (
	"context"
	"testing"

	"github.com/codej/codej/internal/program"
)

// mockBackend is a minimal Backend for registry tests.
type mockBackend struct {
	name Type
}

func (m *mockBackend) Name() Type                          { return m.name }
func (m *mockBackend) TestConnection(context.Context) error { return nil }
func (m *mockBackend) FetchAll(context.Context) ([]program.Program, error) {
	return nil, nil
}
func (m *mockBackend) Create(context.Context, program.Program) (string, error) { return "", nil }
func (m *mockBackend) Update(context.Context, string, program.Program) error   { return nil }
func (m *mockBackend) Delete(context.Context, string) error                    { return nil }

// TestRegistry_BuiltinsRegistered verifies the three variants self-register.
func TestRegistry_BuiltinsRegistered(t *testing.T) {
	for _, typ := range []Type{TypeREST, TypeGist, TypeSupabase} {
		if !IsRegistered(typ) {
			t.Errorf("IsRegistered(%s) = false, want true", typ)
		}
	}
}

// TestRegistry_New verifies construction dispatches on the config type.
func TestRegistry_New(t *testing.T) {
	Register(Type("mock"), func(cfg Config) (Backend, error) {
		return &mockBackend{name: "mock"}, nil
	})

	b, err := New(Config{Type: "mock"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if b.Name() != "mock" {
		t.Errorf("Name() = %s, want mock", b.Name())
	}
}

// TestRegistry_UnknownType verifies unregistered types are an error.
func TestRegistry_UnknownType(t *testing.T) {
	if _, err := New(Config{Type: "nope"}); err == nil {
		t.Error("New() accepted an unknown backend type")
	}
}

// TestRegistry_DuplicatePanics verifies double registration panics.
func TestRegistry_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register() did not panic")
		}
	}()
	Register(TypeREST, func(cfg Config) (Backend, error) { return nil, nil })
}

// TestRegistry_NilConstructorPanics verifies nil constructors panic.
func TestRegistry_NilConstructorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("nil constructor Register() did not panic")
		}
	}()
	Register(Type("nil-ctor"), nil)
}
