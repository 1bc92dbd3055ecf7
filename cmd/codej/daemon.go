package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/codej/codej/internal/daemon"
	"github.com/codej/codej/internal/ui"
)

var daemonForeground bool

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the sync daemon. It keeps the local store and the cloud backend
convergent without any CLI involvement:

  - listens for remote changes (push where the backend supports it,
    polling otherwise)
  - watches the store file for writes from other codej processes
  - runs a periodic full sync as a safety net

Logs go to <config-dir>/daemon.log with rotation; --foreground logs to
stderr instead. Stop with SIGINT or SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a, err := loadApp(ctx, true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		if !a.cfg.HasBackend() {
			fmt.Fprintf(os.Stderr, "%s No backend connected; the daemon will only watch the local store\n", ui.RenderWarn("⚠"))
		}

		logger := log.New(os.Stderr, "[daemon] ", log.LstdFlags)
		if !daemonForeground {
			logger = log.New(&lumberjack.Logger{
				Filename:   filepath.Join(a.cfg.Dir, "daemon.log"),
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}, "[daemon] ", log.LstdFlags)
		}

		cfg := daemon.DefaultConfig()
		cfg.Logger = logger
		if a.cfg.PollInterval > 0 {
			cfg.PollInterval = a.cfg.PollInterval
		}
		if a.cfg.ReconcileInterval > 0 {
			cfg.ReconcileInterval = a.cfg.ReconcileInterval
		}

		d, err := daemon.New(a.store, a.manager, a.orch, cfg)
		if err != nil {
			fatal("%v", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		if err := d.Start(ctx); err != nil {
			fatal("%v", err)
		}
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "log to stderr instead of the log file")
	rootCmd.AddCommand(daemonCmd)
}
