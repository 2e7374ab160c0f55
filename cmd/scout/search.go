package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/use-agent/scout/engine"
	"github.com/use-agent/scout/scraper"
	"github.com/use-agent/scout/stream"
)

var (
	searchSites []string
	parallel    int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search once and print every message as a JSON line",
	Example: `  # Search every configured site
  scout search "the matrix"

  # Only two sites, with debug logs on stderr
  scout search --site sitex --site sitey --log-level debug "the matrix"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchSites, "site", nil, "site id to search (repeatable; default all)")
	searchCmd.Flags().IntVarP(&parallel, "parallel", "j", 0, "plain-HTTP sites searched at once (default $SCOUT_PLAIN_WORKERS)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("query must not be empty")
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	ids := searchSites
	if len(ids) == 0 {
		ids = reg.IDs()
	}
	for _, id := range ids {
		if _, ok := reg.Lookup(id); !ok {
			return fmt.Errorf("unknown site %q (known: %s)", id, strings.Join(reg.IDs(), ", "))
		}
	}

	sc, err := scraper.New(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("init scraper: %w", err)
	}

	limit := parallel
	if limit <= 0 {
		limit = cfg.Worker.PlainWorkers
	}

	runner := engine.NewRunner(reg, sc, stream.NewWriter(os.Stdout), slog.Default())
	outcomes := engine.RunAll(cmd.Context(), runner, engine.FanOut(ids, query, "cli"), limit)

	var results, failed int
	for _, o := range outcomes {
		results += o.Published
		if o.Status == engine.StatusFailed {
			failed++
		}
	}
	slog.Info("search finished", "sites", len(ids), "results", results, "failed_sites", failed)
	return nil
}
