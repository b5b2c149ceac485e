// Package credentials holds the API key and secret shared with the collector.
//
// One Store is built per process and handed to both the outbound client
// and the inbound authenticator, so they always see the same pair.
package credentials

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/celerix-dev/celerix-agent/internal/vault"
)

// ErrNoMasterKey is returned when the persisted secret is sealed but no
// master key was configured to open it.
var ErrNoMasterKey = errors.New("credential secret is sealed but no master key is configured")

// Store is the in-memory view of the persisted credential record.
type Store struct {
	mu        sync.RWMutex
	key       string
	secret    string
	backend   Backend
	masterKey []byte
	logger    *slog.Logger
}

// NewStore returns an empty store. Call Load to read the persisted pair.
// backend may be nil for a memory-only store; masterKey may be nil to
// keep the secret unsealed on disk.
func NewStore(backend Backend, masterKey []byte, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, masterKey: masterKey, logger: logger}
}

// Load reads the persisted record, replacing whatever is in memory.
// Absent or partial records leave the store without keys. When the
// record cannot be read or opened the store is cleared and the error
// returned.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.key, s.secret = "", ""
	if s.backend == nil {
		return nil
	}

	rec, err := s.backend.Load()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	secret := rec.APISecret
	if rec.Sealed && secret != "" {
		if s.masterKey == nil {
			return ErrNoMasterKey
		}
		secret, err = vault.Decrypt(secret, s.masterKey)
		if err != nil {
			return fmt.Errorf("open credential secret: %w", err)
		}
	}

	s.key, s.secret = rec.APIKey, secret
	if !s.hasKeys() {
		s.logger.Debug("collector credentials are not configured")
	}
	return nil
}

// Reload re-reads the persisted record. It is used after the record was
// changed by another process, e.g. the CLI saving new keys.
func (s *Store) Reload() error {
	return s.Load()
}

// SetKey overrides the in-memory API key without persisting it.
func (s *Store) SetKey(key string) {
	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
}

// SetSecret overrides the in-memory API secret without persisting it.
func (s *Store) SetSecret(secret string) {
	s.mu.Lock()
	s.secret = secret
	s.mu.Unlock()
}

// Credentials returns the current key and secret.
func (s *Store) Credentials() (key, secret string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.secret
}

// HasKeys reports whether both the key and the secret are set.
func (s *Store) HasKeys() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasKeys()
}

func (s *Store) hasKeys() bool {
	return s.key != "" && s.secret != ""
}

// Save persists the in-memory pair, sealing the secret when a master key is set.
func (s *Store) Save() error {
	s.mu.RLock()
	rec := Record{APIKey: s.key, APISecret: s.secret}
	s.mu.RUnlock()

	if s.backend == nil {
		return nil
	}
	if s.masterKey != nil && rec.APISecret != "" {
		sealed, err := vault.Encrypt(rec.APISecret, s.masterKey)
		if err != nil {
			return fmt.Errorf("seal credential secret: %w", err)
		}
		rec.APISecret, rec.Sealed = sealed, true
	}
	if err := s.backend.Save(rec); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Clear forgets the pair in memory and on disk (disconnect).
func (s *Store) Clear() error {
	s.mu.Lock()
	s.key, s.secret = "", ""
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	if err := s.backend.Remove(); err != nil {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
