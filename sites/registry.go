// Package sites holds the read-only registry of catalog site definitions.
package sites

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/scout/models"
	"gopkg.in/yaml.v3"
)

// Registry resolves site identifiers to SiteConfig values.
// It is safe for concurrent use; lookups always return a private copy.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*models.SiteConfig
	order   []string
	path    string
	modTime time.Time
	logger  *slog.Logger
}

// file is the on-disk YAML layout.
type file struct {
	Sites []models.SiteConfig `yaml:"sites"`
}

// New builds a registry from in-memory definitions.
func New(defs []models.SiteConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	if err := r.replace(defs); err != nil {
		return nil, err
	}
	return r, nil
}

// Load reads and validates the YAML site file at path.
func Load(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("sites: stat %s: %w", path, err)
	}
	defs, err := readFile(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{path: path, modTime: info.ModTime(), logger: logger}
	if err := r.replace(defs); err != nil {
		return nil, err
	}
	return r, nil
}

// Parse decodes a YAML document with a top-level "sites" list.
func Parse(data []byte) ([]models.SiteConfig, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("sites: parse: %w", err)
	}
	return f.Sites, nil
}

func readFile(path string) ([]models.SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sites: read %s: %w", path, err)
	}
	return Parse(data)
}

// Validate applies defaults and checks one definition.
func Validate(s *models.SiteConfig) error {
	s.Defaults()
	if s.ID == "" {
		return fmt.Errorf("sites: definition without id (name %q)", s.Name)
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("sites: %s: base_url %q is not an absolute URL", s.ID, s.BaseURL)
	}
	switch s.SearchType {
	case models.SearchGET, models.SearchPOST:
	default:
		return fmt.Errorf("sites: %s: unsupported search_type %q", s.ID, s.SearchType)
	}
	switch s.FetchMode {
	case models.FetchModePlainHTTP, models.FetchModeBrowser:
	default:
		return fmt.Errorf("sites: %s: unsupported fetch_mode %q", s.ID, s.FetchMode)
	}

	selectors := []struct{ field, value string }{
		{"result_container_selector", s.ResultContainerSelector},
		{"result_title_selector", s.ResultTitleSelector},
		{"result_link_selector", s.ResultLinkSelector},
		{"result_poster_selector", s.ResultPosterSelector},
	}
	for _, sel := range selectors {
		if sel.value == "" {
			return fmt.Errorf("sites: %s: %s is required", s.ID, sel.field)
		}
		if _, err := cascadia.ParseGroup(sel.value); err != nil {
			return fmt.Errorf("sites: %s: %s %q: %w", s.ID, sel.field, sel.value, err)
		}
	}
	return nil
}

// replace validates defs and swaps them in atomically.
func (r *Registry) replace(defs []models.SiteConfig) error {
	byID := make(map[string]*models.SiteConfig, len(defs))
	order := make([]string, 0, len(defs))
	for i := range defs {
		def := defs[i]
		if err := Validate(&def); err != nil {
			return err
		}
		if _, dup := byID[def.ID]; dup {
			return fmt.Errorf("sites: duplicate id %q", def.ID)
		}
		byID[def.ID] = &def
		order = append(order, def.ID)
	}

	r.mu.Lock()
	r.byID = byID
	r.order = order
	r.mu.Unlock()
	return nil
}

// Lookup returns a copy of the site with the given id.
func (r *Registry) Lookup(id string) (*models.SiteConfig, bool) {
	r.mu.RLock()
	s, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// List returns copies of all sites in file order.
func (r *Registry) List() []models.SiteConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SiteConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// IDs returns all site identifiers in file order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered sites.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Reload re-reads the backing file if its modification time changed.
// A file that fails validation leaves the current definitions in place
// and is not read again until its modification time changes.
func (r *Registry) Reload() (bool, error) {
	if r.path == "" {
		return false, nil
	}
	info, err := os.Stat(r.path)
	if err != nil {
		return false, fmt.Errorf("sites: stat %s: %w", r.path, err)
	}
	r.mu.Lock()
	unchanged := info.ModTime().Equal(r.modTime)
	r.modTime = info.ModTime()
	r.mu.Unlock()
	if unchanged {
		return false, nil
	}

	defs, err := readFile(r.path)
	if err != nil {
		return false, err
	}
	if err := r.replace(defs); err != nil {
		return false, err
	}
	return true, nil
}

// Watch polls the backing file every interval until ctx is done.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) {
	if r.path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := r.Reload()
			if err != nil {
				r.logger.Warn("site reload failed, keeping previous definitions",
					"path", r.path, "error", err)
				continue
			}
			if changed {
				r.logger.Info("site definitions reloaded", "path", r.path, "sites", r.Len())
			}
		}
	}
}
