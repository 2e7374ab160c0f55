package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FanOut builds one unit per site for query, all delivering to channel.
func FanOut(siteIDs []string, query, channel string) []Unit {
	units := make([]Unit, 0, len(siteIDs))
	for _, id := range siteIDs {
		units = append(units, Unit{SiteID: id, Query: query, Channel: channel})
	}
	return units
}

// RunAll runs units in-process and returns their outcomes in input order.
// Plain units run at most limit at a time; browser units run one at a time
// because they share the browser profile.
func RunAll(ctx context.Context, r *Runner, units []Unit, limit int) []Outcome {
	if limit < 1 {
		limit = 1
	}

	var plainIdx, browserIdx []int
	for i, u := range units {
		if site, ok := r.sites.Lookup(u.SiteID); ok && site.RequiresBrowser() {
			browserIdx = append(browserIdx, i)
		} else {
			plainIdx = append(plainIdx, i)
		}
	}

	outcomes := make([]Outcome, len(units))
	runLane := func(idx []int, width int) func() error {
		return func() error {
			var g errgroup.Group
			g.SetLimit(width)
			for _, i := range idx {
				g.Go(func() error {
					outcomes[i] = r.Run(ctx, units[i])
					return nil
				})
			}
			return g.Wait()
		}
	}

	var lanes errgroup.Group
	lanes.Go(runLane(plainIdx, limit))
	lanes.Go(runLane(browserIdx, 1))
	_ = lanes.Wait()
	return outcomes
}
