package credentials

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// OptionKey is the well-known configuration key the credential record is stored under.
const OptionKey = "celerix_agent_credentials"

// Record is the persisted form of the credential pair.
type Record struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	// Sealed marks APISecret as a vault ciphertext.
	Sealed bool `json:"sealed,omitempty"`
}

// Backend reads and writes the persisted credential record.
type Backend interface {
	Load() (Record, error)
	Save(rec Record) error
	Remove() error
}

// Persistence stores the credential record as a JSON file in DataDir.
type Persistence struct {
	DataDir string
	mu      sync.Mutex // Serializes file access
}

// NewPersistence ensures dir exists and returns a file backend rooted there.
func NewPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir}, nil
}

func (p *Persistence) path() string {
	return filepath.Join(p.DataDir, OptionKey+".json")
}

// Load returns the stored record. A missing file is an empty record.
func (p *Persistence) Load() (Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, err := os.ReadFile(p.path())
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal(content, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Save writes the record atomically: a temp file is written and then
// renamed over the old one, so readers see either version but never a
// partial file.
func (p *Persistence) Save(rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	bytes, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	filePath := p.path()
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, bytes, 0600); err != nil {
		return err
	}
	return os.Rename(tempPath, filePath)
}

// Remove deletes the stored record. Removing a missing record is not an error.
func (p *Persistence) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
