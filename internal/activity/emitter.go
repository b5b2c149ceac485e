// Package activity turns observed lifecycle events into log records and
// hands them to the collector client.
//
// Logging must never break the operation that triggered it: delivery
// failures are logged and dropped. Only malformed arguments, which
// point at a bug in the observer, are returned to the caller.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"time"

	"github.com/celerix-dev/celerix-agent/pkg/schema"
	"github.com/celerix-dev/celerix-agent/pkg/signature"
)

// TimestampLayout is the server-local datetime format of LogRecord.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// DefaultHousekeeping matches subtypes written by caches and by the agent
// itself. Logging them would feed the agent's own writes back into the log.
var DefaultHousekeeping = []string{
	`^_?(site_)?transient_`,
	`^_transient_timeout_`,
	`^celerix_agent`,
}

// Sender delivers a record. sdk.Client satisfies it.
type Sender interface {
	SendLog(ctx context.Context, record schema.LogRecord) error
}

// Event is what a monitor's policy sees before a record is built.
type Event struct {
	Activity string
	Action   schema.Action
	ObjectID *int64
	Subtype  string
	Name     string
	Extra    map[string]any
}

// Policy decides whether an event is worth logging.
type Policy interface {
	ShouldLog(ctx context.Context, ev Event) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, ev Event) bool

func (f PolicyFunc) ShouldLog(ctx context.Context, ev Event) bool { return f(ctx, ev) }

// LogAll accepts every event.
var LogAll = PolicyFunc(func(context.Context, Event) bool { return true })

// Config configures an Emitter.
type Config struct {
	Sender Sender
	// Site is attached to every record.
	Site schema.Site
	// Housekeeping lists subtype patterns that are never logged.
	// Defaults to DefaultHousekeeping.
	Housekeeping []string
	// Location is the server-local zone of record timestamps.
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

// Emitter builds log records for its monitors.
type Emitter struct {
	sender       Sender
	site         schema.Site
	housekeeping []*regexp.Regexp
	loc          *time.Location
	logger       *slog.Logger
	now          func() time.Time
}

// NewEmitter compiles the housekeeping patterns and returns an emitter.
func NewEmitter(cfg Config) (*Emitter, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("activity: sender is required")
	}
	patterns := cfg.Housekeeping
	if patterns == nil {
		patterns = DefaultHousekeeping
	}

	e := &Emitter{
		sender: cfg.Sender,
		site:   cfg.Site,
		loc:    cfg.Location,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("activity: housekeeping pattern %q: %w", p, err)
		}
		e.housekeeping = append(e.housekeeping, re)
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Monitor returns the emitter for one observed activity, such as
// "plugin" or "user". A nil policy logs everything.
func (e *Emitter) Monitor(activity string, policy Policy) *Monitor {
	if policy == nil {
		policy = LogAll
	}
	return &Monitor{emitter: e, activity: activity, policy: policy}
}

func (e *Emitter) isHousekeeping(subtype string) bool {
	for _, re := range e.housekeeping {
		if re.MatchString(subtype) {
			return true
		}
	}
	return false
}

// Monitor emits records for a single activity.
type Monitor struct {
	emitter  *Emitter
	activity string
	policy   Policy
}

// Activity returns the activity this monitor classifies records under.
func (m *Monitor) Activity() string {
	return m.activity
}

// Emit logs one event. objectID must be nil or losslessly convertible
// to a non-negative integer, and extra must encode as JSON; otherwise a
// *TypeError is returned and nothing is sent. The record is sent without
// waiting and delivery errors are swallowed.
func (m *Monitor) Emit(ctx context.Context, action schema.Action, objectID any, subtype, name string, extra map[string]any) error {
	id, err := parseObjectID(objectID)
	if err != nil {
		return err
	}
	if action == "" {
		return &TypeError{Field: "action", Value: action, Reason: "empty"}
	}

	e := m.emitter
	if e.isHousekeeping(subtype) {
		return nil
	}

	ev := Event{
		Activity: m.activity,
		Action:   action,
		ObjectID: id,
		Subtype:  subtype,
		Name:     name,
		Extra:    maps.Clone(extra),
	}
	if !m.policy.ShouldLog(ctx, ev) {
		return nil
	}

	record := schema.LogRecord{
		Action:    ev.Action,
		Activity:  ev.Activity,
		Subtype:   ev.Subtype,
		ObjectID:  ev.ObjectID,
		Name:      ev.Name,
		Timestamp: e.now().In(e.loc).Format(TimestampLayout),
		Actor:     actorOf(ctx),
		Site:      e.site,
		Extra:     ev.Extra,
	}
	// Values such as NaN or a func only fail here; past this point an
	// encoding error would be indistinguishable from a delivery failure.
	if _, err := signature.EncodeBody(record); err != nil {
		return &TypeError{Field: "extra", Value: ev.Extra, Reason: err.Error()}
	}
	if err := e.sender.SendLog(ctx, record); err != nil {
		e.logger.Warn("activity record not sent",
			"activity", record.Activity,
			"action", record.Action,
			"error", err,
		)
	}
	return nil
}
