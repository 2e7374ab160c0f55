package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to protocol resource types. Scripts and
// XHR are never blockable: catalog pages render their results with them.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// trackerDomains are ad and analytics hosts dropped when BlockAds is set.
var trackerDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"googletagservices.com": {},
	"connect.facebook.net":  {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"pubmatic.com":          {},
	"rubiconproject.com":    {},
	"scorecardresearch.com": {},
	"hotjar.com":            {},
	"popads.net":            {},
	"popcash.net":           {},
	"propellerads.com":      {},
	"adsterra.com":          {},
	"exoclick.com":          {},
	"juicyads.com":          {},
	"mgid.com":              {},
}

// isTrackerHost reports whether host or one of its parents is a tracker.
func isTrackerHost(host string) bool {
	host = strings.ToLower(host)
	for host != "" {
		if _, ok := trackerDomains[host]; ok {
			return true
		}
		dot := strings.IndexByte(host, '.')
		if dot < 0 {
			break
		}
		host = host[dot+1:]
	}
	return false
}

// requestFilter decides which subresources a session refuses to load.
type requestFilter struct {
	blocked  map[proto.NetworkResourceType]struct{}
	blockAds bool
}

func newRequestFilter(types []string, blockAds bool) *requestFilter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(types))
	for _, name := range types {
		if rt, ok := resourceTypes[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	return &requestFilter{blocked: blocked, blockAds: blockAds}
}

func (f *requestFilter) empty() bool {
	return len(f.blocked) == 0 && !f.blockAds
}

func (f *requestFilter) drop(rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := f.blocked[rt]; ok {
		return true
	}
	if f.blockAds {
		if u, err := url.Parse(rawURL); err == nil && isTrackerHost(u.Hostname()) {
			return true
		}
	}
	return false
}

// install starts a hijack router on page applying f. Returns nil when
// nothing is filtered; otherwise the caller must Stop the router.
func (f *requestFilter) install(page *rod.Page) *rod.HijackRouter {
	if f.empty() {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if f.drop(h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()

	return router
}
