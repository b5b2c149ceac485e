package activity

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-agent/pkg/schema"
)

// recordingSender keeps every record and optionally fails.
type recordingSender struct {
	mu      sync.Mutex
	records []schema.LogRecord
	err     error
}

func (s *recordingSender) SendLog(ctx context.Context, record schema.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func newTestEmitter(t *testing.T, sender Sender) *Emitter {
	t.Helper()
	e, err := NewEmitter(Config{
		Sender:   sender,
		Site:     schema.Site{URL: "https://example.com", AgentVersion: "test"},
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewEmitter failed: %v", err)
	}
	return e
}

func TestEmit_ObjectIDGuard(t *testing.T) {
	sender := &recordingSender{}
	m := newTestEmitter(t, sender).Monitor("post", nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		id      any
		wantErr bool
	}{
		{"int", 42, false},
		{"int64", int64(42), false},
		{"uint8", uint8(7), false},
		{"integral float", 42.0, false},
		{"numeric string", "42", false},
		{"json number", json.Number("42"), false},
		{"nil", nil, false},
		{"zero", 0, false},
		{"word", "abc", true},
		{"fraction", 42.5, true},
		{"padded string", "042", true},
		{"composite string", "12:3", true},
		{"negative", -1, true},
		{"bool", true, true},
		{"slice", []int{1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Emit(ctx, schema.ActionUpdated, tt.id, "post", "Hello world", nil)
			var typeErr *TypeError
			if tt.wantErr != errors.As(err, &typeErr) {
				t.Errorf("Emit(%v) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestEmit_BuildsRecord(t *testing.T) {
	sender := &recordingSender{}
	m := newTestEmitter(t, sender).Monitor("plugin", nil)

	actor := schema.Actor{Type: schema.ActorUser, ID: 1, Name: "admin", Role: "administrator", IP: "203.0.113.9"}
	ctx := WithActor(context.Background(), actor)
	extra := map[string]any{"version": "5.3"}

	if err := m.Emit(ctx, schema.ActionActivated, 12, "plugin", "Akismet", extra); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	extra["version"] = "mutated"

	if sender.count() != 1 {
		t.Fatalf("Expected 1 record, got %d", sender.count())
	}
	got := sender.records[0]
	if got.Action != schema.ActionActivated || got.Activity != "plugin" || got.Name != "Akismet" {
		t.Errorf("Unexpected record %+v", got)
	}
	if got.ObjectID == nil || *got.ObjectID != 12 {
		t.Errorf("Expected object id 12, got %v", got.ObjectID)
	}
	if got.Timestamp != "2026-03-01 09:30:00" {
		t.Errorf("Unexpected timestamp %s", got.Timestamp)
	}
	if got.Actor != actor {
		t.Errorf("Expected actor %+v, got %+v", actor, got.Actor)
	}
	if got.Site.URL != "https://example.com" {
		t.Errorf("Expected site metadata, got %+v", got.Site)
	}
	if got.Extra["version"] != "5.3" {
		t.Errorf("Expected extra to be copied, got %v", got.Extra)
	}
}

func TestEmit_DefaultActorIsVisitor(t *testing.T) {
	sender := &recordingSender{}
	m := newTestEmitter(t, sender).Monitor("user", nil)

	if err := m.Emit(context.Background(), schema.ActionFailedLogin, nil, "user", "admin", nil); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if got := sender.records[0]; got.Actor.Type != schema.ActorVisitor || got.ObjectID != nil {
		t.Errorf("Expected visitor actor and null object id, got %+v", got)
	}
}

func TestEmit_SkipsHousekeeping(t *testing.T) {
	sender := &recordingSender{}
	m := newTestEmitter(t, sender).Monitor("option", nil)
	ctx := context.Background()

	for _, subtype := range []string{"_transient_feed_abc", "_site_transient_update_plugins", "transient_doing_cron", "celerix_agent_credentials"} {
		if err := m.Emit(ctx, schema.ActionUpdated, nil, subtype, subtype, nil); err != nil {
			t.Fatalf("Emit(%s) failed: %v", subtype, err)
		}
	}
	if sender.count() != 0 {
		t.Errorf("Expected housekeeping writes to be skipped, got %d records", sender.count())
	}

	if err := m.Emit(ctx, schema.ActionUpdated, nil, "blogname", "blogname", nil); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if sender.count() != 1 {
		t.Errorf("Expected regular option to be logged")
	}
}

func TestEmit_PolicyDeclines(t *testing.T) {
	sender := &recordingSender{}
	var seen Event
	onlyActivations := PolicyFunc(func(ctx context.Context, ev Event) bool {
		seen = ev
		return ev.Action == schema.ActionActivated
	})
	m := newTestEmitter(t, sender).Monitor("plugin", onlyActivations)

	if err := m.Emit(context.Background(), schema.ActionUpdated, 3, "plugin", "Hello Dolly", nil); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if sender.count() != 0 {
		t.Error("Expected declined event not to be sent")
	}
	if seen.Activity != "plugin" || seen.ObjectID == nil || *seen.ObjectID != 3 {
		t.Errorf("Expected policy to see the normalized event, got %+v", seen)
	}

	if err := m.Emit(context.Background(), schema.ActionActivated, 3, "plugin", "Hello Dolly", nil); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if sender.count() != 1 {
		t.Error("Expected accepted event to be sent")
	}
}

func TestEmit_SwallowsDeliveryErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("collector unreachable")}
	m := newTestEmitter(t, sender).Monitor("core", nil)

	if err := m.Emit(context.Background(), schema.ActionUpdated, nil, "core", "6.5", nil); err != nil {
		t.Errorf("Expected delivery errors to be swallowed, got %v", err)
	}
}

func TestEmit_TypeErrorDoesNotSend(t *testing.T) {
	sender := &recordingSender{}
	m := newTestEmitter(t, sender).Monitor("post", nil)

	if err := m.Emit(context.Background(), schema.ActionUpdated, "abc", "post", "x", nil); err == nil {
		t.Fatal("Expected a TypeError")
	}
	if err := m.Emit(context.Background(), "", 1, "post", "x", nil); err == nil {
		t.Fatal("Expected empty action to be rejected")
	}
	if sender.count() != 0 {
		t.Error("Expected nothing to be sent for malformed input")
	}
}

func TestEmit_UnencodableExtra(t *testing.T) {
	sender := &recordingSender{}
	m := newTestEmitter(t, sender).Monitor("option", nil)

	tests := []struct {
		name  string
		extra map[string]any
	}{
		{"nan", map[string]any{"ratio": math.NaN()}},
		{"channel", map[string]any{"ch": make(chan int)}},
		{"func", map[string]any{"fn": func() {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Emit(context.Background(), schema.ActionUpdated, 3, "blogname", "Site title", tt.extra)
			var typeErr *TypeError
			if !errors.As(err, &typeErr) || typeErr.Field != "extra" {
				t.Fatalf("Expected TypeError on extra, got %v", err)
			}
		})
	}
	if sender.count() != 0 {
		t.Errorf("Expected nothing to be sent, got %d records", sender.count())
	}
}

func TestNewEmitter_Validation(t *testing.T) {
	if _, err := NewEmitter(Config{}); err == nil {
		t.Error("Expected missing sender to fail")
	}
	if _, err := NewEmitter(Config{Sender: &recordingSender{}, Housekeeping: []string{"("}}); err == nil {
		t.Error("Expected invalid pattern to fail")
	}
}
