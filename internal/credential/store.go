// Package credential holds the console's access credential: a single
// durable slot that survives restarts, with torn-free concurrent reads.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	credentialVersion = 1
	fileName          = "credential.json"
)

// ErrEmpty is returned by Set for an empty token. Absence is expressed
// by Clear, never by storing "".
var ErrEmpty = errors.New("credential: empty token")

type record struct {
	Version     int    `json:"version"`
	AccessToken string `json:"access_token"`
}

// Store is the process-wide credential slot. Readers must call Get at
// the point of use; the value may be cleared at any time by the auth
// guard.
type Store struct {
	dir string // empty for memory-only stores
	log *zap.Logger

	writeMu sync.Mutex // serialises durable writes
	token   atomic.Pointer[string]
}

// Open returns a Store persisted under dir, loading any saved token. A
// corrupt file is treated as no credential.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("credential: state dir is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{dir: dir, log: log}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading credential: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn("ignoring unreadable credential file", zap.String("path", s.Path()), zap.Error(err))
		return s, nil
	}
	if rec.AccessToken != "" {
		tok := rec.AccessToken
		s.token.Store(&tok)
	}
	return s, nil
}

// NewMemory returns a Store that never touches disk.
func NewMemory() *Store {
	return &Store{log: zap.NewNop()}
}

// Path returns the credential file path, or "" for memory stores.
func (s *Store) Path() string {
	if s.dir == "" {
		return ""
	}
	return filepath.Join(s.dir, fileName)
}

// Get returns the current token and whether one is present.
func (s *Store) Get() (string, bool) {
	p := s.token.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// Set persists token and makes it visible to all readers. On a failed
// write the previous value stays in place.
func (s *Store) Set(token string) error {
	if token == "" {
		return ErrEmpty
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.dir != "" {
		if err := s.save(record{Version: credentialVersion, AccessToken: token}); err != nil {
			return err
		}
	}
	s.token.Store(&token)
	return nil
}

// Clear removes the durable copy and the in-memory value. Clearing an
// empty store is a no-op.
func (s *Store) Clear() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.token.Store(nil)
	if s.dir == "" {
		return nil
	}
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credential: %w", err)
	}
	return nil
}

// save writes rec using a temp-file-then-rename so a crash never leaves a
// half-written credential behind.
func (s *Store) save(rec record) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".credential-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming credential file: %w", err)
	}
	committed = true
	return nil
}
