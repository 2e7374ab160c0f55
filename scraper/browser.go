package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/scout/config"
	"github.com/use-agent/scout/models"
)

// browserSession is one browser process plus the page it drives.
// A session is owned by exactly one unit and closed by it.
type browserSession interface {
	// Configure installs the evasion payload for every future document.
	Configure(payload *EvasionPayload) error

	// Navigate loads target and returns once the DOM is parsed.
	Navigate(ctx context.Context, target string) error

	// Dismiss closes whatever is blocking a stalled navigation.
	Dismiss() error

	// WaitForSelector polls until at least one element matches selector.
	WaitForSelector(ctx context.Context, selector string) error

	// HTML returns the rendered document.
	HTML() (string, error)

	Close() error
}

// sessionLauncher starts a session on the given profile directory.
type sessionLauncher func(ctx context.Context, profileDir string) (browserSession, error)

// BrowserFetcher renders search pages in a dedicated browser session per call.
//
// Lifecycle of one Fetch:
//
//  0. Wait turn         – sessions of one fetcher run one after another
//  1. Claim profile      – no two sessions ever share a profile directory
//  2. Launch             – start the browser on that profile
//  3. DEFER: teardown    – close page + browser, kill process, release claim
//  4. Configure          – evasion script + Accept-Language (before navigation!)
//  5. Navigate           – DOMContentLoaded only; a timeout here is tolerated
//  6. Wait               – first result container; a timeout here is fatal
//  7. Capture            – full rendered HTML
type BrowserFetcher struct {
	profileDir  string
	navTimeout  time.Duration
	waitTimeout time.Duration
	payload     *EvasionPayload
	launch      sessionLauncher
	claims      *profileClaims
	turn        chan struct{} // one session at a time per profile
	active      atomic.Int32
	logger      *slog.Logger
}

// NewBrowserFetcher creates a BrowserFetcher backed by go-rod.
// payload is shared read-only by every session.
func NewBrowserFetcher(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig, payload *EvasionPayload, logger *slog.Logger) *BrowserFetcher {
	return newBrowserFetcher(browserCfg, scraperCfg, payload, launchRod(browserCfg), logger)
}

func newBrowserFetcher(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig, payload *EvasionPayload, launch sessionLauncher, logger *slog.Logger) *BrowserFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	navTimeout := scraperCfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 10 * time.Second
	}
	waitTimeout := scraperCfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 20 * time.Second
	}
	return &BrowserFetcher{
		profileDir:  browserCfg.ProfileDir,
		navTimeout:  navTimeout,
		waitTimeout: waitTimeout,
		payload:     payload,
		launch:      launch,
		claims:      processClaims,
		turn:        make(chan struct{}, 1),
		logger:      logger,
	}
}

// ActiveSessions returns the number of live browser sessions.
func (b *BrowserFetcher) ActiveSessions() int {
	return int(b.active.Load())
}

// Fetch renders target and returns the document once a result container exists.
func (b *BrowserFetcher) Fetch(ctx context.Context, site *models.SiteConfig, target string) (*Response, error) {
	logger := b.logger.With("site", site.ID, "url", target)

	// ── 0. Wait for the profile to be free ────────────────────────────
	select {
	case b.turn <- struct{}{}:
		defer func() { <-b.turn }()
	case <-ctx.Done():
		return nil, models.NewScrapeError(
			models.ErrCodeSessionLocked,
			fmt.Sprintf("browser profile %s stayed busy with another search", b.profileDir),
			ctx.Err(),
		)
	}

	// ── 1. Claim profile ──────────────────────────────────────────────
	release, ok := b.claims.claim(b.profileDir)
	if !ok {
		return nil, sessionLocked(b.profileDir, nil)
	}
	defer release()

	b.active.Add(1)
	defer b.active.Add(-1)

	// ── 2. Launch ─────────────────────────────────────────────────────
	sess, err := b.launch(ctx, b.profileDir)
	if err != nil {
		return nil, classifyLaunchError(b.profileDir, err)
	}
	logger.Debug("browser session launched", "event", "browser.launched", "profile", b.profileDir)

	// ── 3. Teardown always runs; its failures are never surfaced ──────
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Debug("browser teardown error ignored", "error", closeErr)
		}
	}()

	// ── 4. Configure ──────────────────────────────────────────────────
	if err := sess.Configure(b.payload); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to configure browser session", err)
	}

	// ── 5. Navigate ───────────────────────────────────────────────────
	navCtx, navCancel := context.WithTimeout(ctx, b.navTimeout)
	navErr := sess.Navigate(navCtx, target)
	navCancel()
	if navErr != nil {
		if !errors.Is(navErr, context.DeadlineExceeded) {
			return nil, models.NewScrapeError(models.ErrCodeFetch, "navigation to search page failed", navErr)
		}
		logger.Info("navigation timed out, continuing with partial document",
			"event", "browser.nav_timeout", "timeout", b.navTimeout)
		if err := sess.Dismiss(); err != nil {
			logger.Debug("dismiss after navigation timeout failed", "error", err)
		}
	}

	// ── 6. Wait for the first result container ────────────────────────
	waitCtx, waitCancel := context.WithTimeout(ctx, b.waitTimeout)
	waitErr := sess.WaitForSelector(waitCtx, site.ResultContainerSelector)
	waitCancel()
	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) {
			return nil, models.NewScrapeError(
				models.ErrCodeWaitTimeout,
				fmt.Sprintf("no results appeared within %s", b.waitTimeout),
				waitErr,
			)
		}
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "browser failed while waiting for results", waitErr)
	}

	// ── 7. Capture ────────────────────────────────────────────────────
	html, err := sess.HTML()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to capture rendered page", err)
	}

	return &Response{
		Kind:     KindBrowse,
		Body:     html,
		FinalURL: target,
	}, nil
}

// lockMarkers are fragments of browser errors meaning the profile directory
// belongs to another running browser.
var lockMarkers = []string{
	"user data directory is already in use",
	"processsingleton",
	"singletonlock",
	"existing browser session",
	"profile appears to be in use",
}

func classifyLaunchError(profileDir string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeBrowserCrash, "browser did not start in time", err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range lockMarkers {
		if strings.Contains(msg, marker) {
			return sessionLocked(profileDir, err)
		}
	}
	return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
}

func sessionLocked(profileDir string, err error) *models.ScrapeError {
	return models.NewScrapeError(
		models.ErrCodeSessionLocked,
		fmt.Sprintf("browser profile %s is in use; close every browser window using it and search again", profileDir),
		err,
	)
}

// processClaims is shared by every BrowserFetcher in the process, so two
// fetchers pointed at the same directory never run sessions together.
var processClaims = newProfileClaims()

// profileClaims tracks which profile directories are owned by a live session.
type profileClaims struct {
	mu    sync.Mutex
	inUse map[string]struct{}
}

func newProfileClaims() *profileClaims {
	return &profileClaims{inUse: make(map[string]struct{})}
}

// claim marks dir as owned. The returned release func is idempotent.
func (c *profileClaims) claim(dir string) (func(), bool) {
	key := dir
	if abs, err := filepath.Abs(dir); err == nil {
		key = abs
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, taken := c.inUse[key]; taken {
		return nil, false
	}
	c.inUse[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.inUse, key)
			c.mu.Unlock()
		})
	}, true
}
