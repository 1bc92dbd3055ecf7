// codej is a personal code snippet manager with offline-first cloud sync.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codej/codej/internal/config"
	"github.com/codej/codej/internal/connection"
	"github.com/codej/codej/internal/program"
	syncpkg "github.com/codej/codej/internal/sync"
	"github.com/codej/codej/internal/ui"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "codej",
	Short: "Personal code snippet manager with cloud sync",
	Long: `codej stores code snippets locally and keeps them in sync with a
cloud backend of your choice: a REST API, a GitHub gist, or a Supabase
table.

Every change is saved locally first; sync happens in the background and
never blocks you. Run 'codej connect' to set up a backend, or use codej
entirely offline.`,
}

// app bundles the wired-up components every command needs.
type app struct {
	cfg     *config.Config
	store   *program.Store
	manager *connection.Manager
	orch    *syncpkg.Orchestrator
}

// cliNotifier prints sync events to the terminal.
type cliNotifier struct{}

func (cliNotifier) SyncCompleted(added, updated int) {
	fmt.Printf("%s Synced: %d added, %d updated\n", ui.RenderPass("✓"), added, updated)
}

func (cliNotifier) SyncWarning(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarn("⚠"), msg)
}

// loadApp wires the store, connection manager, and orchestrator. When
// resume is true and a backend is configured, the saved connection is
// restored; failure to reach it leaves the app usable offline.
func loadApp(ctx context.Context, resume bool) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	store, err := program.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	manager := connection.NewManager(cfg, log.New(io.Discard, "", 0))
	if resume && cfg.HasBackend() {
		bc := cfg.Backend
		bc.PersistGistID = cfg.SaveGistID
		if err := manager.Resume(ctx, bc); err != nil {
			fmt.Fprintf(os.Stderr, "%s %s backend unreachable, working offline\n",
				ui.RenderWarn("⚠"), cfg.Backend.Type)
		}
	}

	orch := syncpkg.New(store, manager, syncpkg.Options{Notifier: cliNotifier{}})
	return &app{cfg: cfg, store: store, manager: manager, orch: orch}, nil
}

func (a *app) close() {
	a.orch.Close()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// commandContext returns a context bounded for one CLI invocation.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.codej)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "snippets", Title: "Snippet commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
