package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	syncpkg "github.com/codej/codej/internal/sync"
	"github.com/codej/codej/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync with the cloud backend now",
	Long: `Run one full sync: pull the remote snippet set, merge it into the
local store, and push anything the remote is missing or holds stale.

Conflicts resolve by last edit time; on a tie the local copy wins.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := loadApp(ctx, true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		if err := a.orch.Sync(ctx); err != nil {
			if errors.Is(err, syncpkg.ErrNotConnected) {
				fatal("no backend connected; run 'codej connect' first")
			}
			fatal("%v", err)
		}
		fmt.Printf("%s Sync complete, %d snippet(s)\n", ui.RenderPass("✓"), a.store.Len())
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
