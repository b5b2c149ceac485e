package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testMasterKey = []byte("thisis32byteslongsecretkey123456")

func newFileStore(t *testing.T, masterKey []byte) (*Store, *Persistence) {
	t.Helper()
	p, err := NewPersistence(t.TempDir())
	if err != nil {
		t.Fatalf("NewPersistence failed: %v", err)
	}
	return NewStore(p, masterKey, nil), p
}

func TestStore_LoadMissingRecord(t *testing.T) {
	s, _ := newFileStore(t, nil)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.HasKeys() {
		t.Error("Expected no keys without a persisted record")
	}
}

func TestStore_PartialRecord(t *testing.T) {
	s, p := newFileStore(t, nil)
	if err := p.Save(Record{APIKey: "k1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.HasKeys() {
		t.Error("Expected a key without a secret to leave the store unconfigured")
	}
	key, _ := s.Credentials()
	if key != "k1" {
		t.Errorf("Expected partial key to be loaded, got %q", key)
	}
}

func TestStore_SaveAndReload(t *testing.T) {
	s, p := newFileStore(t, nil)
	s.SetKey("k1")
	s.SetSecret("s1")
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	other := NewStore(p, nil, nil)
	if err := other.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	key, secret := other.Credentials()
	if key != "k1" || secret != "s1" {
		t.Errorf("Expected k1/s1, got %s/%s", key, secret)
	}

	// An external writer changes the record; Reload picks it up.
	if err := p.Save(Record{APIKey: "k2", APISecret: "s2"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := other.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	key, secret = other.Credentials()
	if key != "k2" || secret != "s2" {
		t.Errorf("Expected k2/s2 after reload, got %s/%s", key, secret)
	}
}

func TestStore_SealedSecret(t *testing.T) {
	s, p := newFileStore(t, testMasterKey)
	s.SetKey("k1")
	s.SetSecret("s1")
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(p.DataDir, OptionKey+".json"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.Contains(string(raw), `"s1"`) {
		t.Error("Expected the secret to be sealed on disk")
	}

	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if _, secret := s.Credentials(); secret != "s1" {
		t.Errorf("Expected s1, got %s", secret)
	}

	unkeyed := NewStore(p, nil, nil)
	if err := unkeyed.Load(); !errors.Is(err, ErrNoMasterKey) {
		t.Errorf("Expected ErrNoMasterKey, got %v", err)
	}
	if unkeyed.HasKeys() {
		t.Error("Expected store to stay unconfigured when the secret cannot be opened")
	}
}

func TestStore_Clear(t *testing.T) {
	s, p := newFileStore(t, nil)
	s.SetKey("k1")
	s.SetSecret("s1")
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s.HasKeys() {
		t.Error("Expected no keys after Clear")
	}
	if _, err := os.Stat(filepath.Join(p.DataDir, OptionKey+".json")); !os.IsNotExist(err) {
		t.Errorf("Expected record file to be removed, got %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Errorf("Clearing twice should not fail: %v", err)
	}
}

func TestStore_MemoryOnly(t *testing.T) {
	s := NewStore(nil, nil, nil)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s.SetKey("k")
	if s.HasKeys() {
		t.Error("Expected HasKeys to require the secret")
	}
	s.SetSecret("x")
	if !s.HasKeys() {
		t.Error("Expected HasKeys after setting both")
	}
	if err := s.Save(); err != nil {
		t.Errorf("Save without backend should be a no-op, got %v", err)
	}
}

func TestPersistence_CorruptRecord(t *testing.T) {
	s, p := newFileStore(t, nil)
	if err := os.WriteFile(filepath.Join(p.DataDir, OptionKey+".json"), []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := s.Load(); err == nil {
		t.Error("Expected a corrupt record to fail loading")
	}
	if s.HasKeys() {
		t.Error("Expected no keys from a corrupt record")
	}
}
