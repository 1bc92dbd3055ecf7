package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/codej/codej/internal/program"
	"github.com/codej/codej/internal/ui"
)

var (
	addTitle       string
	addLanguage    string
	addCodeFile    string
	addDescription string
	addURL         string
	addTags        string
)

var addCmd = &cobra.Command{
	Use:     "add",
	GroupID: "snippets",
	Short:   "Add a code snippet",
	Long: `Add a code snippet to the local store.

The snippet body is read from --code-file, or from stdin when the flag
is omitted:

  codej add -t "quick sort" -l go -f sort.go
  cat sort.go | codej add -t "quick sort" -l go

If a backend is connected the snippet is uploaded in the background.`,
	Run: func(cmd *cobra.Command, args []string) {
		code, err := readCode(addCodeFile)
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

		p, err := a.orch.Add(program.Draft{
			Title:       addTitle,
			Language:    addLanguage,
			Code:        code,
			Description: addDescription,
			URL:         addURL,
			Tags:        program.ParseTags(addTags),
		})
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Added %s (%s)\n", ui.RenderPass("✓"), ui.RenderAccent(p.Title), p.ID)
		waitForSync(ctx, a)
	},
}

var (
	listQuery    string
	listLanguage string
	listSince    string
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "snippets",
	Short:   "List code snippets",
	Long: `List snippets in the local store, newest first.

Filters combine:

  codej list -q sort
  codej list --language go --since "last week"

--since accepts natural language dates ("yesterday", "3 days ago").`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := loadApp(ctx, false)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		filter := program.Filter{Query: listQuery, Language: listLanguage}
		if listSince != "" {
			since, err := parseSince(listSince)
			if err != nil {
				fatal("%v", err)
			}
			filter.Since = since
		}

		programs := filter.Apply(a.store.List())
		if len(programs) == 0 {
			fmt.Println("No snippets found")
			return
		}
		for _, p := range programs {
			line := fmt.Sprintf("%s  %s  %s", ui.RenderMuted(p.ID), ui.RenderAccent(p.Title), p.Language)
			if len(p.Tags) > 0 {
				line += "  " + ui.RenderMuted("#"+strings.Join(p.Tags, " #"))
			}
			fmt.Println(line)
		}
		fmt.Printf("\n%d snippet(s)\n", len(programs))
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "snippets",
	Short:   "Show a snippet in full",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := loadApp(ctx, false)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		p, ok := a.store.Get(args[0])
		if !ok {
			fatal("snippet %s not found", args[0])
		}
		fmt.Printf("%s\n", ui.RenderAccent(p.Title))
		fmt.Printf("%s  %s\n", ui.RenderMuted("id:"), p.ID)
		fmt.Printf("%s  %s\n", ui.RenderMuted("language:"), p.Language)
		if p.Description != "" {
			fmt.Printf("%s  %s\n", ui.RenderMuted("description:"), p.Description)
		}
		if p.URL != "" {
			fmt.Printf("%s  %s\n", ui.RenderMuted("url:"), p.URL)
		}
		if len(p.Tags) > 0 {
			fmt.Printf("%s  %s\n", ui.RenderMuted("tags:"), strings.Join(p.Tags, ", "))
		}
		fmt.Printf("%s  %s\n", ui.RenderMuted("updated:"), p.UpdatedAt.Local().Format(time.RFC1123))
		fmt.Printf("\n%s\n", p.Code)
	},
}

var (
	editTitle       string
	editLanguage    string
	editCodeFile    string
	editDescription string
	editURL         string
	editTags        string
)

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "snippets",
	Short:   "Edit a snippet",
	Long: `Edit fields of an existing snippet. Only the given flags change;
everything else is preserved. The update timestamp always advances, so
the edited version wins reconciliation against older copies elsewhere.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := loadApp(ctx, true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		p, ok := a.store.Get(args[0])
		if !ok {
			fatal("snippet %s not found", args[0])
		}

		// Start from the current values; flags override.
		d := program.Draft{
			Title:       p.Title,
			Language:    p.Language,
			Code:        p.Code,
			Description: p.Description,
			URL:         p.URL,
			Tags:        p.Tags,
		}
		if cmd.Flags().Changed("title") {
			d.Title = editTitle
		}
		if cmd.Flags().Changed("language") {
			d.Language = editLanguage
		}
		if cmd.Flags().Changed("code-file") {
			code, err := readCode(editCodeFile)
			if err != nil {
				fatal("%v", err)
			}
			d.Code = code
		}
		if cmd.Flags().Changed("description") {
			d.Description = editDescription
		}
		if cmd.Flags().Changed("url") {
			d.URL = editURL
		}
		if cmd.Flags().Changed("tags") {
			d.Tags = program.ParseTags(editTags)
		}

		updated, err := a.orch.Update(args[0], d)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), ui.RenderAccent(updated.Title))
		waitForSync(ctx, a)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	GroupID: "snippets",
	Short:   "Delete a snippet",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := loadApp(ctx, true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		if _, ok := a.store.Get(args[0]); !ok {
			fatal("snippet %s not found", args[0])
		}
		if err := a.orch.Delete(args[0]); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), args[0])
		waitForSync(ctx, a)
	},
}

// readCode reads the snippet body from a file or stdin.
func readCode(path string) (string, error) {
	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read code: %w", err)
	}
	return string(data), nil
}

// parseSince parses a natural language date like "3 days ago".
func parseSince(s string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand date %q", s)
	}
	return r.Time, nil
}

// waitForSync gives queued background propagation a moment to finish
// before the process exits. Failures surface as warnings only.
func waitForSync(ctx context.Context, a *app) {
	if _, ok := a.manager.Backend(); !ok {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = a.orch.Flush(waitCtx)
}

func init() {
	addCmd.Flags().StringVarP(&addTitle, "title", "t", "", "snippet title (required)")
	addCmd.Flags().StringVarP(&addLanguage, "language", "l", "", "programming language (required)")
	addCmd.Flags().StringVarP(&addCodeFile, "code-file", "f", "", "read the snippet body from this file")
	addCmd.Flags().StringVar(&addDescription, "description", "", "description")
	addCmd.Flags().StringVar(&addURL, "url", "", "reference URL")
	addCmd.Flags().StringVar(&addTags, "tags", "", "comma-separated tags")
	addCmd.MarkFlagRequired("title")
	addCmd.MarkFlagRequired("language")

	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "match title, description, or tags")
	listCmd.Flags().StringVar(&listLanguage, "language", "", "filter by language")
	listCmd.Flags().StringVar(&listSince, "since", "", "only snippets updated after this date (natural language)")

	editCmd.Flags().StringVarP(&editTitle, "title", "t", "", "new title")
	editCmd.Flags().StringVarP(&editLanguage, "language", "l", "", "new language")
	editCmd.Flags().StringVarP(&editCodeFile, "code-file", "f", "", "read the new body from this file")
	editCmd.Flags().StringVar(&editDescription, "description", "", "new description")
	editCmd.Flags().StringVar(&editURL, "url", "", "new reference URL")
	editCmd.Flags().StringVar(&editTags, "tags", "", "new comma-separated tags")

	rootCmd.AddCommand(addCmd, listCmd, showCmd, editCmd, deleteCmd)
}
