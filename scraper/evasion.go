package scraper

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/stealth"
	"github.com/use-agent/scout/config"
)

// fingerprintJS overrides the signals page scripts use to spot automation.
// Placeholders are filled with JSON literals.
const fingerprintJS = `(() => {
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => %[1]s});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
Object.defineProperty(navigator, 'platform', {get: () => %[2]s});
if (!window.chrome) { window.chrome = { runtime: {} }; }
try {
  const orig = navigator.permissions && navigator.permissions.query;
  if (orig) {
    navigator.permissions.__proto__.query = function(p) {
      if (p && p.name === 'notifications') {
        return Promise.resolve({ state: Notification.permission });
      }
      return orig.call(this, p);
    };
  }
} catch (e) {}
try {
  const patch = (proto) => {
    const getParameter = proto.getParameter;
    proto.getParameter = function(param) {
      if (param === 37445) return %[3]s;
      if (param === 37446) return %[4]s;
      return getParameter.call(this, param);
    };
  };
  if (window.WebGLRenderingContext) patch(WebGLRenderingContext.prototype);
  if (window.WebGL2RenderingContext) patch(WebGL2RenderingContext.prototype);
} catch (e) {}
})();`

// EvasionPayload is the script injected before any page script runs.
// It is built once at startup and never mutated.
type EvasionPayload struct {
	script         string
	acceptLanguage string
}

// NewEvasionPayload combines the go-rod/stealth evasions with fingerprint
// overrides taken from cfg.
func NewEvasionPayload(cfg config.BrowserConfig) (*EvasionPayload, error) {
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"en-US", "en"}
	}

	values := []any{languages, cfg.Platform, cfg.WebGLVendor, cfg.WebGLRenderer}
	literals := make([]any, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("evasion: encode fingerprint value: %w", err)
		}
		literals[i] = string(b)
	}

	return &EvasionPayload{
		script:         stealth.JS + "\n" + fmt.Sprintf(fingerprintJS, literals...),
		acceptLanguage: acceptLanguage(languages),
	}, nil
}

// Script returns the JavaScript source to evaluate on every new document.
func (p *EvasionPayload) Script() string {
	return p.script
}

// AcceptLanguage returns the header value matching navigator.languages.
func (p *EvasionPayload) AcceptLanguage() string {
	return p.acceptLanguage
}

// acceptLanguage renders ["en-US","en"] as "en-US,en;q=0.9".
func acceptLanguage(languages []string) string {
	var b strings.Builder
	for i, lang := range languages {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(lang)
		if i > 0 {
			q := 1.0 - 0.1*float64(i)
			if q < 0.1 {
				q = 0.1
			}
			fmt.Fprintf(&b, ";q=%.1f", q)
		}
	}
	return b.String()
}
