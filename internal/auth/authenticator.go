// Package auth verifies that inbound REST calls were signed by the collector.
package auth

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/celerix-dev/celerix-agent/pkg/signature"
)

const (
	HeaderKey       = signature.HeaderKey
	HeaderSignature = signature.HeaderSignature
	HeaderTimestamp = signature.HeaderTimestamp
	HeaderAlgorithm = signature.HeaderAlgorithm
)

// The two rejection reasons deliberately say nothing about which check failed.
var (
	// ErrInvalidAPIKeys means the agent has no credentials configured.
	ErrInvalidAPIKeys = errors.New("invalid api keys")
	// ErrInvalidSignature covers every other rejection.
	ErrInvalidSignature = errors.New("invalid signature")
)

// DefaultMaxBodyBytes bounds how much of a request body is read for
// verification when Config.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 8 << 20

var errBodyTooLarge = errors.New("request body exceeds verification limit")

// CredentialSource provides the pair requests must be signed with.
type CredentialSource interface {
	Credentials() (key, secret string)
	HasKeys() bool
}

// Config configures an Authenticator.
type Config struct {
	Credentials CredentialSource
	// MaxSkew rejects requests whose timestamp is further than this from
	// the local clock. Zero accepts any timestamp.
	MaxSkew time.Duration
	// MaxBodyBytes rejects larger bodies instead of verifying a prefix.
	MaxBodyBytes int64
	Logger       *slog.Logger
	Now          func() time.Time
}

// Authenticator checks the HMAC headers of inbound requests.
type Authenticator struct {
	creds   CredentialSource
	maxSkew time.Duration
	maxBody int64
	logger  *slog.Logger
	now     func() time.Time
}

// New returns an Authenticator. Credentials is required.
func New(cfg Config) *Authenticator {
	if cfg.Credentials == nil {
		panic("auth.New: Credentials is required")
	}
	a := &Authenticator{
		creds:   cfg.Credentials,
		maxSkew: cfg.MaxSkew,
		maxBody: cfg.MaxBodyBytes,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.maxBody <= 0 {
		a.maxBody = DefaultMaxBodyBytes
	}
	return a
}

// Authenticate returns nil when r carries a valid signature. The body is
// read in full and put back so handlers can still decode it.
func (a *Authenticator) Authenticate(r *http.Request) error {
	// Judge the same snapshot that is used for signing.
	key, secret := a.creds.Credentials()
	if key == "" || secret == "" {
		return ErrInvalidAPIKeys
	}

	body, err := readBody(r, a.maxBody)
	if err != nil {
		a.logger.Debug("reading request body for verification", "error", err)
		return ErrInvalidSignature
	}

	gotKey := r.Header.Get(HeaderKey)
	gotSig := r.Header.Get(HeaderSignature)
	ts := r.Header.Get(HeaderTimestamp)

	expected := signature.SignRaw(key, secret, r.Method, body, ts)
	sigOK := signature.Equal(expected, gotSig)
	keyOK := signature.Equal(key, gotKey)
	if !sigOK || !keyOK {
		return ErrInvalidSignature
	}
	if a.maxSkew > 0 && !a.fresh(ts) {
		return ErrInvalidSignature
	}
	return nil
}

func (a *Authenticator) fresh(ts string) bool {
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	skew := a.now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	return skew <= a.maxSkew
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	r.Body.Close()
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
