package engine

import (
	"context"
	"iter"

	"github.com/use-agent/scout/models"
	"github.com/use-agent/scout/scraper"
)

// Unit is one (site, query) pair to search, delivering to Channel.
type Unit struct {
	SiteID  string
	Query   string
	Channel string
}

// SiteLookup resolves site identifiers. sites.Registry implements it.
type SiteLookup interface {
	Lookup(id string) (*models.SiteConfig, bool)
}

// Fetcher performs the search on one site and extracts its records.
// scraper.Scraper implements it.
type Fetcher interface {
	Fetch(ctx context.Context, site *models.SiteConfig, term string) (*scraper.Response, error)
	Records(site *models.SiteConfig, resp *scraper.Response) (iter.Seq[models.ResultRecord], error)
}

// Publisher delivers messages to a channel. stream.Publisher implementations
// satisfy it.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg models.Message) error
}

// Status is how a unit ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome summarises one unit run for logging and tests.
type Outcome struct {
	Status    Status
	Published int   // result messages delivered
	Err       error // set when Status is StatusFailed
}
