// Package verifier persists the PKCE verifier the desktop app hands to the UI process. The
// record lives in the app-data directory and is replaced once its TTL has passed.
package verifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jrsteele09/go-desktop-handoff/pkce"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultFileName = "handoff-auth-state.json"
	DefaultTTL      = 2 * time.Minute
)

// Record is the on-disk shape of the verifier file.
type Record struct {
	Verifier  string `json:"verifier"`
	ExpiresAt int64  `json:"expiresAt"` // unix ms
}

// Store hands out the current verifier, rotating it once expired.
type Store struct {
	path           string
	ttl            time.Duration
	verifierLength int
	nowTime        func() time.Time

	mu sync.Mutex
}

// Option defines a function type to modify the Store instance.
type Option func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithTTL sets how long a verifier stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithVerifierLength sets the random byte count behind new verifiers.
func WithVerifierLength(byteLength int) Option {
	return func(s *Store) {
		s.verifierLength = byteLength
	}
}

// WithFileName overrides the record file name inside the data directory.
func WithFileName(name string) Option {
	return func(s *Store) {
		s.path = filepath.Join(filepath.Dir(s.path), name)
	}
}

// NewStore creates a store keeping its record in dataDir.
func NewStore(dataDir string, options ...Option) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("[NewStore] data directory is required")
	}
	s := &Store{
		path:           filepath.Join(dataDir, DefaultFileName),
		ttl:            DefaultTTL,
		verifierLength: pkce.DefaultVerifierLength,
		nowTime:        time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.ttl <= 0 {
		return nil, errors.New("[NewStore] ttl must be positive")
	}
	return s, nil
}

// Path is the location of the record file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the stored verifier while it is valid. Otherwise the stale record is
// removed and a new verifier is generated and written. A failed write is logged and the
// new verifier is still returned.
func (s *Store) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowTime()
	if rec, ok := s.read(); ok && now.UnixMilli() < rec.ExpiresAt {
		return rec.Verifier, nil
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to remove stale verifier file")
	}

	verifier, err := pkce.GenerateVerifier(s.verifierLength)
	if err != nil {
		return "", errors.Wrap(err, "[Store Get]")
	}

	rec := Record{Verifier: verifier, ExpiresAt: now.Add(s.ttl).UnixMilli()}
	if err := s.write(rec); err != nil {
		log.Err(err).Str("path", s.path).Msg("failed to persist verifier")
	}
	return verifier, nil
}

func (s *Store) read() (Record, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("failed to read verifier file")
		}
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.Verifier == "" || rec.ExpiresAt <= 0 {
		log.Warn().Str("path", s.path).Msg("verifier file is corrupt, regenerating")
		return Record{}, false
	}
	return rec, true
}

func (s *Store) write(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "create data dir")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode verifier file")
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "write verifier file")
	}
	return nil
}
