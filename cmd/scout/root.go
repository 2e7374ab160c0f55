package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/scout/config"
	"github.com/use-agent/scout/sites"
)

var (
	cfg       *config.Config
	sitesFile string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Search catalog sites and stream normalized results",
	Long: `scout searches a configured list of catalog sites for a query and streams
each result as soon as it is extracted. Sites are fetched with plain HTTP or,
when they need it, a real browser with anti-automation evasion.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if sitesFile != "" {
			cfg.Sites.Path = sitesFile
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		initLogger(cfg.Log, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sitesFile, "sites", "", "site definitions file (default $SCOUT_SITES_FILE or sites.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadRegistry reads the configured sites file.
func loadRegistry() (*sites.Registry, error) {
	return sites.Load(cfg.Sites.Path, slog.Default())
}

// initLogger configures slog based on the LogConfig.
func initLogger(lc config.LogConfig, w io.Writer) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if lc.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
