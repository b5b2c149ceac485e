// Package site models the host platform the agent manages: the core
// install, its plugins and its themes.
package site

import (
	"errors"
	"strings"

	"golang.org/x/mod/semver"
)

// Kind distinguishes plugins from themes.
type Kind string

const (
	KindPlugin Kind = "plugin"
	KindTheme  Kind = "theme"
)

// Action is a package management verb accepted by the REST surface.
type Action string

const (
	ActionInstall    Action = "install"
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
	ActionDelete     Action = "delete"
	ActionUpdate     Action = "update"
)

// ErrUnsupportedAction is returned for a verb the package kind does not
// support, such as deactivating a theme.
var ErrUnsupportedAction = errors.New("unsupported package action")

// Actions lists the verbs each package kind supports.
var Actions = map[Kind][]Action{
	KindPlugin: {ActionInstall, ActionActivate, ActionDeactivate, ActionDelete, ActionUpdate},
	KindTheme:  {ActionInstall, ActionActivate, ActionDelete, ActionUpdate},
}

// Supports reports whether kind accepts action.
func Supports(kind Kind, action Action) bool {
	for _, a := range Actions[kind] {
		if a == action {
			return true
		}
	}
	return false
}

// Package is an installed plugin or theme.
type Package struct {
	Slug    string `json:"slug" yaml:"slug"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Active  bool   `json:"active" yaml:"active"`
}

// Result is the outcome of one slug in a package request.
type Result struct {
	Slug    string `json:"slug"`
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
	Version string `json:"version,omitempty"`
}

// CoreUpdate is the body of POST /core/update.
type CoreUpdate struct {
	Minor   bool   `json:"minor"`
	Version string `json:"version"`
	Force   bool   `json:"force"`
	Locale  string `json:"locale"`
}

// CoreResult reports what a core update did.
type CoreResult struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Locale  string `json:"locale,omitempty"`
	Updated bool   `json:"updated"`
	Message string `json:"message,omitempty"`
}

// HealthCheck is one site-health test.
type HealthCheck struct {
	Test        string `json:"test"`
	Status      string `json:"status"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Health is the site-health snapshot.
type Health struct {
	Status string        `json:"status"`
	Checks []HealthCheck `json:"checks"`
}

// Info summarizes the site.
type Info struct {
	URL           string `json:"url"`
	Name          string `json:"name"`
	CoreVersion   string `json:"core_version"`
	Locale        string `json:"locale"`
	ActiveTheme   string `json:"active_theme,omitempty"`
	PluginCount   int    `json:"plugin_count"`
	ActivePlugins int    `json:"active_plugins"`
	AgentVersion  string `json:"agent_version"`
}

// compareVersions orders dotted version strings such as "6.5.2".
func compareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// sameMinor reports whether a and b share a major.minor branch.
func sameMinor(a, b string) bool {
	return semver.MajorMinor(canonical(a)) == semver.MajorMinor(canonical(b))
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
