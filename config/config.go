package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Sites     SitesConfig
	Worker    WorkerConfig
	Stream    StreamConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the per-unit browser sessions.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// ProfileDir is the persistent ("warmed up") user data directory.
	// Only one session may use it at a time.
	ProfileDir string // default: ".scout/profile"

	// DefaultProxy is the proxy URL for browser and HTTP traffic.
	DefaultProxy string

	// UserAgent is sent by both fetchers.
	UserAgent string

	// BlockResources lists resource types the browser never downloads
	// ("Image", "Stylesheet", "Font", "Media").
	BlockResources []string // default: ["Font", "Media"]

	// BlockAds drops requests to known ad and tracking domains.
	BlockAds bool // default: true

	// Fingerprint values reported to page scripts by the evasion payload.
	Languages     []string // default: ["en-US", "en"]
	Platform      string   // default: "Win32"
	WebGLVendor   string   // default: "Intel Inc."
	WebGLRenderer string   // default: "Intel Iris OpenGL Engine"
}

// ScraperConfig controls fetch timeouts and limits.
type ScraperConfig struct {
	// HTTPTimeout bounds a plain GET/POST request.
	HTTPTimeout time.Duration // default: 10s

	// NavigationTimeout bounds browser navigation. Exceeding it is tolerated.
	NavigationTimeout time.Duration // default: 10s

	// WaitTimeout bounds the wait for the first result container.
	WaitTimeout time.Duration // default: 20s

	// MaxBodyBytes caps the response body read by the HTTP fetcher.
	MaxBodyBytes int64 // default: 10 MB

	// CacheTTL is how long a fetched page is reused for the same site and
	// query. Zero disables the cache.
	CacheTTL time.Duration // default: 0

	// CacheEntries caps the number of cached pages.
	CacheEntries int // default: 512
}

// SitesConfig controls where site definitions come from.
type SitesConfig struct {
	// Path is the YAML file holding the site list.
	Path string // default: "sites.yaml"

	// ReloadInterval is how often the file is checked for changes. 0 disables.
	ReloadInterval time.Duration // default: 30s
}

// WorkerConfig sizes the two execution lanes.
type WorkerConfig struct {
	PlainWorkers   int           // default: 8
	BrowserWorkers int           // default: 1; capped at 1, all sessions share ProfileDir
	QueueSize      int           // default: 256
	UnitTimeout    time.Duration // default: 2m
}

// StreamConfig controls message delivery.
type StreamConfig struct {
	// BufferSize is the per-session message buffer.
	BufferSize int // default: 64

	// PublishTimeout bounds a single publish to a slow session.
	PublishTimeout time.Duration // default: 5s

	// WebhookSecret signs webhook deliveries when non-empty.
	WebhookSecret string

	// AllowedOrigins lists WebSocket origin patterns; empty means same-origin only.
	AllowedOrigins []string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SCOUT_HOST", "0.0.0.0"),
			Port: envIntOr("SCOUT_PORT", 8080),
			Mode: envOr("SCOUT_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("SCOUT_HEADLESS", true),
			NoSandbox:      envBoolOr("SCOUT_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("SCOUT_BROWSER_BIN"),
			ProfileDir:     envOr("SCOUT_PROFILE_DIR", ".scout/profile"),
			DefaultProxy:   os.Getenv("SCOUT_PROXY"),
			UserAgent:      envOr("SCOUT_USER_AGENT", defaultUserAgent),
			BlockResources: envSliceOr("SCOUT_BLOCK_RESOURCES", []string{"Font", "Media"}),
			BlockAds:       envBoolOr("SCOUT_BLOCK_ADS", true),
			Languages:      envSliceOr("SCOUT_LANGUAGES", []string{"en-US", "en"}),
			Platform:       envOr("SCOUT_PLATFORM", "Win32"),
			WebGLVendor:    envOr("SCOUT_WEBGL_VENDOR", "Intel Inc."),
			WebGLRenderer:  envOr("SCOUT_WEBGL_RENDERER", "Intel Iris OpenGL Engine"),
		},
		Scraper: ScraperConfig{
			HTTPTimeout:       envDurationOr("SCOUT_HTTP_TIMEOUT", 10*time.Second),
			NavigationTimeout: envDurationOr("SCOUT_NAV_TIMEOUT", 10*time.Second),
			WaitTimeout:       envDurationOr("SCOUT_WAIT_TIMEOUT", 20*time.Second),
			MaxBodyBytes:      int64(envIntOr("SCOUT_MAX_BODY_BYTES", 10<<20)),
			CacheTTL:          envDurationOr("SCOUT_CACHE_TTL", 0),
			CacheEntries:      envIntOr("SCOUT_CACHE_ENTRIES", 512),
		},
		Sites: SitesConfig{
			Path:           envOr("SCOUT_SITES_FILE", "sites.yaml"),
			ReloadInterval: envDurationOr("SCOUT_SITES_RELOAD", 30*time.Second),
		},
		Worker: WorkerConfig{
			PlainWorkers:   envIntOr("SCOUT_PLAIN_WORKERS", 8),
			BrowserWorkers: envIntOr("SCOUT_BROWSER_WORKERS", 1),
			QueueSize:      envIntOr("SCOUT_QUEUE_SIZE", 256),
			UnitTimeout:    envDurationOr("SCOUT_UNIT_TIMEOUT", 2*time.Minute),
		},
		Stream: StreamConfig{
			BufferSize:     envIntOr("SCOUT_STREAM_BUFFER", 64),
			PublishTimeout: envDurationOr("SCOUT_PUBLISH_TIMEOUT", 5*time.Second),
			WebhookSecret:  os.Getenv("SCOUT_WEBHOOK_SECRET"),
			AllowedOrigins: envSliceOr("SCOUT_ALLOWED_ORIGINS", nil),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SCOUT_AUTH_ENABLED", false),
			APIKeys: envSliceOr("SCOUT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SCOUT_RATE_RPS", 2.0),
			Burst:             envIntOr("SCOUT_RATE_BURST", 5),
		},
		Log: LogConfig{
			Level:  envOr("SCOUT_LOG_LEVEL", "info"),
			Format: envOr("SCOUT_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
