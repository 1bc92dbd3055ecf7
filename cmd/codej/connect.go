package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codej/codej/internal/backend"
	"github.com/codej/codej/internal/connection"
	"github.com/codej/codej/internal/ui"
)

var (
	connectURL   string
	connectToken string
)

var connectCmd = &cobra.Command{
	Use:     "connect <rest|gist|supabase>",
	GroupID: "sync",
	Short:   "Connect a cloud backend",
	Long: `Connect a cloud backend for syncing snippets across devices.

Three backends are supported:

  rest      a plain CRUD API (--url required)
  gist      a private GitHub gist (--token is a personal access token)
  supabase  a Supabase project (--url and --token required)

Missing values are prompted for interactively. The connection is tested
before anything is saved; a failed test changes nothing.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		t := backend.Type(strings.ToLower(args[0]))
		if !backend.IsRegistered(t) {
			fatal("unknown backend %q (available: rest, gist, supabase)", args[0])
		}

		if err := promptMissing(t); err != nil {
			fatal("%v", err)
		}

		ctx, cancel := commandContext()
		defer cancel()
		a, err := loadApp(ctx, false)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		bc := backend.Config{
			Type:          t,
			BaseURL:       connectURL,
			Token:         connectToken,
			GistID:        a.cfg.Backend.GistID,
			PersistGistID: a.cfg.SaveGistID,
		}
		if err := a.manager.Connect(ctx, bc); err != nil {
			if sql := backend.SetupInstructions(err); sql != "" {
				fmt.Fprintf(os.Stderr, "%s The programs table does not exist yet.\n", ui.RenderFail("✗"))
				fmt.Fprintf(os.Stderr, "Run this in your project's SQL editor, then connect again:\n\n%s\n", sql)
				os.Exit(1)
			}
			fatal("%v", err)
		}
		fmt.Printf("%s Connected to %s backend\n", ui.RenderPass("✓"), ui.RenderAccent(string(t)))

		fmt.Println("Running first sync...")
		if err := a.orch.Sync(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%s First sync failed: %v\n", ui.RenderWarn("⚠"), err)
			return
		}
		fmt.Printf("%s %d snippet(s) in store\n", ui.RenderPass("✓"), a.store.Len())
	},
}

// promptMissing fills in URL and token interactively. With a terminal a
// form is shown; without one the missing values are an error so scripts
// fail fast instead of hanging.
func promptMissing(t backend.Type) error {
	needURL := t != backend.TypeGist && connectURL == ""
	needToken := t != backend.TypeREST && connectToken == ""
	if !needURL && !needToken {
		return nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("missing --url or --token and no terminal to prompt on")
	}

	var fields []huh.Field
	if needURL {
		title := "API URL"
		if t == backend.TypeSupabase {
			title = "Project URL"
		}
		fields = append(fields, huh.NewInput().Title(title).Value(&connectURL))
	}
	if needToken {
		title := "API key"
		if t == backend.TypeGist {
			title = "GitHub personal access token"
		}
		fields = append(fields, huh.NewInput().Title(title).EchoMode(huh.EchoModePassword).Value(&connectToken))
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("prompt cancelled: %w", err)
	}
	return nil
}

var disconnectCmd = &cobra.Command{
	Use:     "disconnect",
	GroupID: "sync",
	Short:   "Disconnect the cloud backend",
	Long: `Disconnect the cloud backend and clear its saved credentials.

Local snippets are untouched; codej keeps working offline.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := loadApp(ctx, false)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		if !a.cfg.HasBackend() {
			fmt.Println("No backend connected")
			return
		}
		if err := a.manager.Disconnect(); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Disconnected\n", ui.RenderPass("✓"))
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show connection and store status",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := loadApp(ctx, true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		fmt.Printf("%s  %d snippet(s)\n", ui.RenderMuted("store:"), a.store.Len())
		fmt.Printf("%s  %s\n", ui.RenderMuted("file:"), a.store.Path())

		if !a.cfg.HasBackend() {
			fmt.Printf("%s  none (local only)\n", ui.RenderMuted("backend:"))
			return
		}
		fmt.Printf("%s  %s\n", ui.RenderMuted("backend:"), a.cfg.Backend.Type)
		switch a.manager.State() {
		case connection.StateConnected:
			fmt.Printf("%s  %s\n", ui.RenderMuted("state:"), ui.RenderPass("connected"))
		case connection.StateOffline:
			fmt.Printf("%s  %s\n", ui.RenderMuted("state:"), ui.RenderWarn("offline"))
		default:
			fmt.Printf("%s  %s\n", ui.RenderMuted("state:"), string(a.manager.State()))
		}
	},
}

func init() {
	connectCmd.Flags().StringVar(&connectURL, "url", "", "backend URL")
	connectCmd.Flags().StringVar(&connectToken, "token", "", "API key or access token")

	rootCmd.AddCommand(connectCmd, disconnectCmd, statusCmd)
}
