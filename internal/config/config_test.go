package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/codej/codej/internal/backend"
)

// TestLoad_Defaults verifies a fresh directory yields working defaults
// and no config file requirement.
func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.StorePath != filepath.Join(dir, "programs.json") {
		t.Errorf("StorePath = %q", cfg.StorePath)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
	if cfg.ReconcileInterval != 5*time.Minute {
		t.Errorf("ReconcileInterval = %v, want 5m", cfg.ReconcileInterval)
	}
	if cfg.HasBackend() {
		t.Error("HasBackend() = true on a fresh config")
	}
}

// TestLoad_CreatesDir verifies first run creates the config directory.
func TestLoad_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "codej")
	if _, err := Load(dir); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("config dir was not created: %v", err)
	}
}

// TestSaveBackend_RoundTrip verifies credentials persist across loads.
func TestSaveBackend_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	bc := backend.Config{
		Type:    backend.TypeSupabase,
		BaseURL: "https://demo.supabase.co",
		Token:   "anon-key",
	}
	if err := cfg.SaveBackend(bc); err != nil {
		t.Fatalf("SaveBackend() failed: %v", err)
	}
	if !cfg.HasBackend() {
		t.Error("HasBackend() = false after SaveBackend()")
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}
	if !reflect.DeepEqual(reloaded.Backend, bc) {
		t.Errorf("reloaded backend = %+v, want %+v", reloaded.Backend, bc)
	}
}

// TestClearBackend verifies disconnect removes the persisted block.
func TestClearBackend(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := cfg.SaveBackend(backend.Config{Type: backend.TypeREST, BaseURL: "http://x"}); err != nil {
		t.Fatalf("SaveBackend() failed: %v", err)
	}

	if err := cfg.ClearBackend(); err != nil {
		t.Fatalf("ClearBackend() failed: %v", err)
	}
	if cfg.HasBackend() {
		t.Error("HasBackend() = true after ClearBackend()")
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}
	if reloaded.HasBackend() {
		t.Errorf("cleared credentials survived reload: %+v", reloaded.Backend)
	}
}

// TestSaveGistID verifies the container ID assigned on first write is
// kept for later sessions.
func TestSaveGistID(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := cfg.SaveBackend(backend.Config{Type: backend.TypeGist, Token: "pat"}); err != nil {
		t.Fatalf("SaveBackend() failed: %v", err)
	}
	if err := cfg.SaveGistID("abc123"); err != nil {
		t.Fatalf("SaveGistID() failed: %v", err)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}
	if reloaded.Backend.GistID != "abc123" {
		t.Errorf("GistID = %q, want abc123", reloaded.Backend.GistID)
	}
	if reloaded.Backend.Token != "pat" {
		t.Error("SaveGistID() disturbed the stored token")
	}
}
