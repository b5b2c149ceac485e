// Package schema defines the records exchanged between the agent and the collector.
package schema

// ActorType classifies who triggered a monitored event.
type ActorType string

const (
	ActorUser    ActorType = "user"
	ActorVisitor ActorType = "visitor"
	ActorCron    ActorType = "cron"
	ActorCLI     ActorType = "wp-cli"
	ActorREST    ActorType = "rest-api"
)

// Actor is the identity responsible for an event, captured at log time.
type Actor struct {
	Type  ActorType `json:"type"`
	ID    int64     `json:"id,omitempty"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
	IP    string    `json:"ip"`
}

// Action is the lifecycle verb of a log record.
type Action string

const (
	ActionCreated     Action = "created"
	ActionUpdated     Action = "updated"
	ActionDeleted     Action = "deleted"
	ActionTrashed     Action = "trashed"
	ActionRestored    Action = "restored"
	ActionInstalled   Action = "installed"
	ActionActivated   Action = "activated"
	ActionDeactivated Action = "deactivated"
	ActionUninstalled Action = "uninstalled"
	ActionLoggedIn    Action = "logged_in"
	ActionLoggedOut   Action = "logged_out"
	ActionFailedLogin Action = "failed_login"
)

// Site is host metadata attached to every record.
type Site struct {
	URL          string `json:"url"`
	Name         string `json:"name,omitempty"`
	Version      string `json:"version,omitempty"`
	AgentVersion string `json:"agent_version,omitempty"`
}

// LogRecord is one activity event as posted to site/activity/log.
type LogRecord struct {
	Action    Action `json:"action"`
	Activity  string `json:"activity"`
	Subtype   string `json:"subtype"`
	ObjectID  *int64 `json:"object_id"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
	Actor     Actor  `json:"actor"`
	Site      Site   `json:"site"`
	// Extra is schemaless telemetry attached by the observer.
	Extra map[string]any `json:"extra,omitempty"`
}
