package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/scout/config"
	"github.com/ysmood/gson"
)

// rodSession is a browserSession backed by a dedicated Chromium process.
type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
}

// launchRod returns a sessionLauncher starting Chromium with the flags that
// hide automation from the page.
func launchRod(cfg config.BrowserConfig) sessionLauncher {
	filter := newRequestFilter(cfg.BlockResources, cfg.BlockAds)

	return func(ctx context.Context, profileDir string) (browserSession, error) {
		if err := os.MkdirAll(profileDir, 0o755); err != nil {
			return nil, fmt.Errorf("browser: create profile dir: %w", err)
		}

		l := launcher.New().
			Context(ctx).
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox).
			UserDataDir(profileDir).
			Leakless(true)

		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}
		if cfg.DefaultProxy != "" {
			l = l.Proxy(cfg.DefaultProxy)
		}

		// ── Stealth flags ────────────────────────────────────────────────
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-popup-blocking"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("no-first-run"))
		l.Set(flags.Flag("log-level"), "3")
		if cfg.UserAgent != "" {
			l.Set(flags.Flag("user-agent"), cfg.UserAgent)
		}

		controlURL, err := l.Launch()
		if err != nil {
			l.Kill()
			return nil, err
		}

		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			l.Kill()
			return nil, fmt.Errorf("browser: connect: %w", err)
		}

		page, err := browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			_ = browser.Close()
			l.Kill()
			return nil, fmt.Errorf("browser: create page: %w", err)
		}

		return &rodSession{
			launcher: l,
			browser:  browser,
			page:     page,
			router:   filter.install(page),
		}, nil
	}
}

func (s *rodSession) Configure(payload *EvasionPayload) error {
	if _, err := s.page.EvalOnNewDocument(payload.Script()); err != nil {
		return fmt.Errorf("browser: install evasion script: %w", err)
	}
	return proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": payload.AcceptLanguage(),
		}),
	}.Call(s.page)
}

// Navigate waits for DOMContentLoaded rather than the full load event.
// When ctx expires first, ctx.Err() is returned.
func (s *rodSession) Navigate(ctx context.Context, target string) error {
	p := s.page.Context(ctx)
	waitParsed := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(target); err != nil {
		return err
	}
	waitParsed()
	return ctx.Err()
}

// Dismiss closes an open JavaScript dialog, if any, then presses Escape to
// stop whatever is still loading.
func (s *rodSession) Dismiss() error {
	_ = proto.PageHandleJavaScriptDialog{Accept: false}.Call(s.page.Timeout(2 * time.Second))
	return s.page.Keyboard.Type(input.Escape)
}

func (s *rodSession) WaitForSelector(ctx context.Context, selector string) error {
	return s.page.Context(ctx).WaitElementsMoreThan(selector, 0)
}

func (s *rodSession) HTML() (string, error) {
	return s.page.HTML()
}

// Close tears everything down. The process is killed even when the
// CDP calls fail.
func (s *rodSession) Close() error {
	var errs []error
	if s.router != nil {
		if err := s.router.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop hijack: %w", err))
		}
	}
	if err := s.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	s.launcher.Kill()
	return errors.Join(errs...)
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
