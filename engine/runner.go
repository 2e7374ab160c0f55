package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/use-agent/scout/models"
)

// Runner executes units: resolve the site, fetch, extract, publish.
//
// Per unit, the channel receives either zero or more result messages or
// exactly one error message, never both. Unknown sites produce nothing.
type Runner struct {
	sites     SiteLookup
	fetcher   Fetcher
	publisher Publisher
	logger    *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(sites SiteLookup, fetcher Fetcher, publisher Publisher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{sites: sites, fetcher: fetcher, publisher: publisher, logger: logger}
}

// FailureMessage is the text of the error message sent when site fails.
func FailureMessage(site *models.SiteConfig, err error) string {
	return fmt.Sprintf("Failed to fetch data from %s: %s", site.Name, models.MessageOf(err))
}

// Run executes u once. It never panics and never returns an error; the
// Outcome only describes what happened.
func (r *Runner) Run(ctx context.Context, u Unit) (out Outcome) {
	logger := r.logger.With("site", u.SiteID, "query", u.Query)

	site, ok := r.sites.Lookup(u.SiteID)
	if !ok {
		logger.Info("site not configured, unit skipped", "event", "unit.skipped", "code", models.ErrCodeConfigNotFound)
		return Outcome{Status: StatusSkipped}
	}

	start := time.Now()
	logger.Info("unit started", "event", "unit.started", "fetch_mode", site.FetchMode, "search_type", site.SearchType)

	published := 0
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		err := fmt.Errorf("engine: unit panicked: %v", rec)
		logger.Error("unit panicked", "event", "unit.failed", "panic", rec, "stack", string(debug.Stack()))
		if published == 0 {
			internal := models.NewScrapeError(models.ErrCodeInternal, "internal error", err)
			r.reportFailure(ctx, logger, u, site, internal)
		}
		out = Outcome{Status: StatusFailed, Published: published, Err: err}
	}()

	resp, err := r.fetcher.Fetch(ctx, site, u.Query)
	if err != nil {
		logger.Warn("fetch failed", "event", "unit.failed", "code", models.CodeOf(err), "error", err,
			"duration", time.Since(start))
		r.reportFailure(ctx, logger, u, site, err)
		return Outcome{Status: StatusFailed, Err: err}
	}

	records, err := r.fetcher.Records(site, resp)
	if err != nil {
		logger.Warn("extraction failed", "event", "unit.failed", "code", models.CodeOf(err), "error", err)
		r.reportFailure(ctx, logger, u, site, err)
		return Outcome{Status: StatusFailed, Err: err}
	}

	for rec := range records {
		if err := r.publisher.Publish(ctx, u.Channel, models.NewResultMessage(rec)); err != nil {
			logger.Warn("publish failed, stopping unit", "event", "unit.failed", "published", published, "error", err)
			return Outcome{Status: StatusFailed, Published: published, Err: err}
		}
		published++
	}

	logger.Info("unit completed", "event", "unit.completed", "results", published,
		"kind", resp.Kind.String(), "duration", time.Since(start))
	return Outcome{Status: StatusCompleted, Published: published}
}

func (r *Runner) reportFailure(ctx context.Context, logger *slog.Logger, u Unit, site *models.SiteConfig, cause error) {
	msg := models.NewErrorMessage(FailureMessage(site, cause))
	if err := r.publisher.Publish(ctx, u.Channel, msg); err != nil {
		logger.Warn("could not deliver error message", "error", err, "cause", cause)
	}
}
