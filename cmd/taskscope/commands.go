package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/taskscope/internal/cache"
	"github.com/msageha/taskscope/internal/daemon"
	"github.com/msageha/taskscope/internal/events"
	"github.com/msageha/taskscope/internal/query"
)

var queryCmd = &cobra.Command{
	Use:   "query <name> [args...]",
	Short: "Run a named query",
	Long: `Run one of the built-in queries. Names:
  ` + strings.Join(query.NamedQueries(), ", ") + `

Queries taking arguments:
  by-tag <tag...>, by-status <status...>, by-priority <level...>,
  by-folder <prefix>, by-text <words...>, in-date-range <from> <to>,
  recently-completed [days]`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := current.service.Named(cmd.Context(), args[0], args[1:]...)
		if err != nil {
			return err
		}
		return output(cmd.OutOrStdout(), tasks, current.loc)
	},
}

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Fuzzy search task descriptions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks := current.service.Search(cmd.Context(), strings.Join(args, " "), searchLimit)
		return output(cmd.OutOrStdout(), tasks, current.loc)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the vault and keep the index current",
	Long: `Watch the vault for changes, invalidating and rebuilding the index as
documents are created, modified, renamed or deleted. Each rebuild is
reported on stdout. Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !current.cfg.Watcher.Enabled {
			return fmt.Errorf("watcher is disabled (watcher.enabled: false)")
		}
		w := cmd.OutOrStdout()
		unsubscribe := current.bus.Subscribe(func(e events.Event) {
			switch e.Type {
			case events.EventTasksRefreshed:
				fmt.Fprintln(w, summaryStyle.Render(fmt.Sprintf("%s refreshed: %d task(s)", e.Timestamp.In(current.loc).Format("15:04:05"), e.Count)))
			case events.EventRefreshFailed:
				fmt.Fprintln(w, invalidStyle.Render(fmt.Sprintf("%s refresh failed: %s", e.Timestamp.In(current.loc).Format("15:04:05"), e.Reason)))
			}
		}, events.EventTasksRefreshed, events.EventRefreshFailed)
		defer unsubscribe()

		cfg := current.cfg.Watcher
		d := daemon.New(current.vault, current.service, daemon.Options{
			Debounce:        cfg.Debounce(),
			RefreshInterval: cfg.RefreshInterval,
			Logger:          current.logger,
		})
		fmt.Fprintf(w, "watching %s\n", current.vault.Root())
		return d.Run()
	},
}

type statsReport struct {
	Cache       cache.Stats            `json:"cache"`
	Coordinator query.CoordinatorStats `json:"coordinator"`
	Dropped     uint64                 `json:"dropped_events"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Index the vault once and print cache and refresh statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := current.service
		svc.GetAllTasks(cmd.Context())
		coord := svc.Coordinator()
		report := statsReport{
			Cache:       coord.Cache().Stats(),
			Coordinator: coord.Stats(),
			Dropped:     current.bus.Dropped(),
		}
		if jsonOutput {
			return renderJSON(cmd.OutOrStdout(), report)
		}
		w := cmd.OutOrStdout()
		c, r := report.Cache, report.Coordinator
		fmt.Fprintln(w, groupStyle.Render("cache"))
		fmt.Fprintf(w, "  documents %d, records %d, snapshot %d (valid %v)\n", c.Files, c.FileRecords, c.GlobalRecords, c.GlobalValid)
		fmt.Fprintf(w, "  hits %d, misses %d, invalidations %d, evictions %d, ttl %s\n", c.Hits, c.Misses, c.Invalidations, c.Evictions, c.TTL)
		fmt.Fprintln(w, groupStyle.Render("refresh"))
		fmt.Fprintf(w, "  run %s took %s over %d documents\n", r.LastRunID, r.LastDuration, r.LastDocumentCount)
		fmt.Fprintf(w, "  extracted %d, reused %d, failed %d\n", r.Extracted, r.Reused, r.FailedDocuments)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum results (0 = all)")
}
