package site

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/celerix-dev/celerix-agent/internal/activity"
	"github.com/celerix-dev/celerix-agent/pkg/schema"
)

// Inventory seeds a MemSite.
type Inventory struct {
	Core    string    `yaml:"core"`
	Locale  string    `yaml:"locale"`
	Plugins []Package `yaml:"plugins"`
	Themes  []Package `yaml:"themes"`
	// Available maps "plugin/<slug>", "theme/<slug>" and "core" to the
	// newest version the update server offers.
	Available map[string]string `yaml:"available"`
}

// LoadInventory reads an inventory YAML file.
func LoadInventory(path string) (Inventory, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Inventory{}, fmt.Errorf("read inventory: %w", err)
	}
	var inv Inventory
	if err := yaml.Unmarshal(content, &inv); err != nil {
		return Inventory{}, fmt.Errorf("parse inventory %s: %w", path, err)
	}
	return inv, nil
}

// MemSite is an in-memory site. Every change it makes is reported
// through its activity monitors, the same way hooks on a real host would.
type MemSite struct {
	mu        sync.RWMutex
	core      string
	locale    string
	packages  map[Kind]map[string]*Package
	available map[string]string

	meta     schema.Site
	monitors map[string]*activity.Monitor
	logger   *slog.Logger
}

// NewMemSite builds a site from inv. emitter may be nil to run without
// activity logging.
func NewMemSite(inv Inventory, meta schema.Site, emitter *activity.Emitter, logger *slog.Logger) *MemSite {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MemSite{
		core:      inv.Core,
		locale:    inv.Locale,
		packages:  map[Kind]map[string]*Package{KindPlugin: {}, KindTheme: {}},
		available: map[string]string{},
		meta:      meta,
		monitors:  map[string]*activity.Monitor{},
		logger:    logger,
	}
	if s.locale == "" {
		s.locale = "en_US"
	}
	for _, p := range inv.Plugins {
		pkg := p
		s.packages[KindPlugin][p.Slug] = &pkg
	}
	for _, t := range inv.Themes {
		pkg := t
		s.packages[KindTheme][t.Slug] = &pkg
	}
	for k, v := range inv.Available {
		s.available[k] = v
	}
	if emitter != nil {
		for _, name := range []string{"core", string(KindPlugin), string(KindTheme)} {
			s.monitors[name] = emitter.Monitor(name, nil)
		}
	}
	return s
}

func (s *MemSite) emit(ctx context.Context, activityName string, action schema.Action, subtype, name string, extra map[string]any) {
	m, ok := s.monitors[activityName]
	if !ok {
		return
	}
	if err := m.Emit(ctx, action, nil, subtype, name, extra); err != nil {
		s.logger.Error("building activity record", "activity", activityName, "error", err)
	}
}

// UpdateCore moves the core to the requested version.
func (s *MemSite) UpdateCore(ctx context.Context, req CoreUpdate) (CoreResult, error) {
	s.mu.Lock()
	target := req.Version
	if target == "" || target == "latest" {
		target = s.available["core"]
	}
	res := CoreResult{From: s.core, To: target}

	switch {
	case target == "":
		s.mu.Unlock()
		res.To = s.core
		res.Message = "no core update available"
		return res, nil
	case req.Minor && !sameMinor(s.core, target) && !req.Force:
		s.mu.Unlock()
		res.Message = fmt.Sprintf("%s is not a minor update of %s", target, s.core)
		return res, nil
	case compareVersions(target, s.core) <= 0 && !req.Force:
		s.mu.Unlock()
		res.Message = "core is already up to date"
		return res, nil
	}

	s.core = target
	if req.Locale != "" {
		s.locale = req.Locale
	}
	res.Locale = s.locale
	res.Updated = true
	s.mu.Unlock()

	s.emit(ctx, "core", schema.ActionUpdated, "core", target, map[string]any{
		"from":  res.From,
		"to":    res.To,
		"force": req.Force,
	})
	return res, nil
}

// Packages applies action to every slug of kind and reports each outcome.
func (s *MemSite) Packages(ctx context.Context, kind Kind, action Action, slugs []string) ([]Result, error) {
	if !Supports(kind, action) {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedAction, kind, action)
	}
	results := make([]Result, 0, len(slugs))
	for _, slug := range slugs {
		res, logged := s.apply(kind, action, slug)
		results = append(results, res)
		if logged != "" {
			s.emit(ctx, string(kind), logged, string(kind), slug, map[string]any{"version": res.Version})
		}
	}
	return results, nil
}

// apply performs one package change under the lock and returns the
// action to log, or "" when nothing changed.
func (s *MemSite) apply(kind Kind, action Action, slug string) (Result, schema.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Slug: slug}
	installed := s.packages[kind]
	pkg, ok := installed[slug]
	latest := s.available[string(kind)+"/"+slug]

	fail := func(msg string) (Result, schema.Action) {
		res.Message = msg
		return res, ""
	}

	switch action {
	case ActionInstall:
		if ok {
			return fail("already installed")
		}
		if latest == "" {
			return fail("package not found")
		}
		pkg = &Package{Slug: slug, Name: slug, Version: latest}
		installed[slug] = pkg
		res.Status, res.Version = true, latest
		return res, schema.ActionInstalled

	case ActionActivate:
		if !ok {
			return fail("not installed")
		}
		res.Version = pkg.Version
		if pkg.Active {
			return fail("already active")
		}
		if kind == KindTheme {
			for _, other := range installed {
				other.Active = false
			}
		}
		pkg.Active = true
		res.Status = true
		return res, schema.ActionActivated

	case ActionDeactivate:
		if !ok {
			return fail("not installed")
		}
		res.Version = pkg.Version
		if !pkg.Active {
			return fail("already inactive")
		}
		pkg.Active = false
		res.Status = true
		return res, schema.ActionDeactivated

	case ActionDelete:
		if !ok {
			return fail("not installed")
		}
		res.Version = pkg.Version
		if pkg.Active {
			return fail("cannot delete an active package")
		}
		delete(installed, slug)
		res.Status = true
		return res, schema.ActionUninstalled

	case ActionUpdate:
		if !ok {
			return fail("not installed")
		}
		res.Version = pkg.Version
		if latest == "" || compareVersions(latest, pkg.Version) <= 0 {
			return fail("already up to date")
		}
		pkg.Version = latest
		res.Status, res.Version = true, latest
		return res, schema.ActionUpdated
	}
	return fail("unsupported action")
}

// List returns the installed packages of kind sorted by slug.
func (s *MemSite) List(kind Kind) []Package {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Package, 0, len(s.packages[kind]))
	for _, p := range s.packages[kind] {
		list = append(list, *p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Slug < list[j].Slug })
	return list
}

// Info summarizes the site.
func (s *MemSite) Info(ctx context.Context) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		URL:          s.meta.URL,
		Name:         s.meta.Name,
		CoreVersion:  s.core,
		Locale:       s.locale,
		PluginCount:  len(s.packages[KindPlugin]),
		AgentVersion: s.meta.AgentVersion,
	}
	for _, p := range s.packages[KindPlugin] {
		if p.Active {
			info.ActivePlugins++
		}
	}
	for _, t := range s.packages[KindTheme] {
		if t.Active {
			info.ActiveTheme = t.Slug
		}
	}
	return info, nil
}

// Health runs the site-health checks.
func (s *MemSite) Health(ctx context.Context) (Health, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var checks []HealthCheck
	coreCheck := HealthCheck{Test: "core_version", Status: "good", Label: "Core is up to date"}
	if latest := s.available["core"]; latest != "" && compareVersions(latest, s.core) > 0 {
		coreCheck.Status = "critical"
		coreCheck.Label = "A core update is available"
		coreCheck.Description = fmt.Sprintf("%s is installed, %s is available", s.core, latest)
	}
	checks = append(checks, coreCheck)

	for _, kind := range []Kind{KindPlugin, KindTheme} {
		var outdated []string
		for slug, p := range s.packages[kind] {
			if latest := s.available[string(kind)+"/"+slug]; latest != "" && compareVersions(latest, p.Version) > 0 {
				outdated = append(outdated, slug)
			}
		}
		sort.Strings(outdated)
		c := HealthCheck{Test: string(kind) + "_updates", Status: "good", Label: "All " + string(kind) + "s are up to date"}
		if len(outdated) > 0 {
			c.Status = "recommended"
			c.Label = fmt.Sprintf("%d %s update(s) available", len(outdated), kind)
			c.Description = fmt.Sprint(outdated)
		}
		checks = append(checks, c)
	}

	h := Health{Status: "good", Checks: checks}
	for _, c := range checks {
		if c.Status == "critical" {
			h.Status = "critical"
			break
		}
		if c.Status == "recommended" {
			h.Status = "recommended"
		}
	}
	return h, nil
}

// DebugData returns the debug snapshot: site info, inventory and runtime.
func (s *MemSite) DebugData(ctx context.Context) (map[string]any, error) {
	info, _ := s.Info(ctx)
	return map[string]any{
		"site":    info,
		"plugins": s.List(KindPlugin),
		"themes":  s.List(KindTheme),
		"runtime": map[string]any{
			"go_version": runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"goroutines": runtime.NumGoroutine(),
		},
	}, nil
}
