package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codej/codej/internal/program"
	"github.com/codej/codej/internal/ui"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "snippets",
	Short:   "Export all snippets to a backup file",
	Long: `Export the full snippet set as a backup document.

Writes to the given file, or stdout when omitted:

  codej export backup.json
  codej export --format yaml backup.yaml`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := loadApp(ctx, false)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		format := program.Format(strings.ToLower(exportFormat))
		if format != program.FormatJSON && format != program.FormatYAML {
			fatal("unknown format %q (json or yaml)", exportFormat)
		}

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				fatal("%v", err)
			}
			defer f.Close()
			out = f
		}

		if err := program.Export(out, a.store.List(), format); err != nil {
			fatal("%v", err)
		}
		if len(args) == 1 {
			fmt.Printf("%s Exported %d snippet(s) to %s\n", ui.RenderPass("✓"), a.store.Len(), args[0])
		}
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "snippets",
	Short:   "Import snippets from a backup file",
	Long: `Import snippets from a backup file, JSON or YAML, detected by
content. Imported records merge with existing ones: unknown records are
added, known ones are replaced only when the imported copy is newer.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			fatal("%v", err)
		}
		defer f.Close()

		backup, err := program.Import(f)
		if err != nil {
			fatal("%v", err)
		}

		ctx, cancel := commandContext()
		defer cancel()
		a, err := loadApp(ctx, true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		added, err := a.orch.Import(backup.Programs)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Imported %d record(s), %d new\n", ui.RenderPass("✓"), len(backup.Programs), added)

		if _, ok := a.manager.Backend(); ok {
			if err := a.orch.Sync(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "%s Sync after import failed: %v\n", ui.RenderWarn("⚠"), err)
			}
		}
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "backup format: json or yaml")
	rootCmd.AddCommand(exportCmd, importCmd)
}
