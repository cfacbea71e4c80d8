// Package session holds the logged-in credential pair and persists it
// across runs as a single JSON record.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/harrisonrobin/onesheet/pkg/model"
	"github.com/harrisonrobin/onesheet/pkg/signal"
	"go.uber.org/zap"
)

const (
	// FileName is the session record inside the config directory.
	FileName = "session.json"

	xdgAppName = "onesheet"
)

// Record is the durable session: the credential pair plus the user it belongs to.
type Record struct {
	UserID string      `json:"userId"`
	Token  string      `json:"token"`
	User   *model.User `json:"user"`
}

// Complete reports whether every part of the record is present.
func (r *Record) Complete() bool {
	return r != nil && r.UserID != "" && r.Token != "" && r.User != nil
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.User != nil {
		u := *r.User
		cp.User = &u
	}
	return &cp
}

// ErrIncomplete is returned when saving a record that lacks a part.
var ErrIncomplete = errors.New("session record is incomplete")

// DefaultPath returns ~/.config/onesheet/session.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName, FileName), nil
}

// Store is the single owner of the session record. It is safe for
// concurrent use; a credential read may be invalidated by a concurrent
// expiry, which callers observe as an Auth failure on their next call.
type Store struct {
	path   string
	bus    *signal.Bus
	logger *zap.Logger

	mu    sync.RWMutex
	rec   *Record
	unsub func()
}

// NewStore creates a Store persisting to path. The store subscribes to
// bus for session expiry and clears itself when it fires.
func NewStore(path string, bus *signal.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, bus: bus, logger: logger}
	if bus != nil {
		s.unsub = bus.Subscribe(signal.SessionExpired, func() {
			s.logger.Info("session expired, clearing credentials")
			s.Logout()
		})
	}
	return s
}

// Close detaches the store from its signal bus.
func (s *Store) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

// Restore loads the persisted record into memory. A missing record means
// not logged in. A corrupt or incomplete record is deleted and also means
// not logged in.
func (s *Store) Restore() (*Record, bool) {
	rec, err := recordFromFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("discarding unreadable session record", zap.String("path", s.path), zap.Error(err))
			s.removeFile()
		}
		return nil, false
	}
	if !rec.Complete() {
		s.logger.Warn("discarding incomplete session record", zap.String("path", s.path))
		s.removeFile()
		return nil, false
	}

	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()
	return rec.clone(), true
}

// Save persists rec and makes it the current session.
func (s *Store) Save(rec Record) error {
	if !rec.Complete() {
		return ErrIncomplete
	}
	if err := saveRecord(s.path, &rec); err != nil {
		return err
	}
	s.mu.Lock()
	s.rec = rec.clone()
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the in-memory record, or nil when logged out.
func (s *Store) Current() *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.clone()
}

// Credentials returns the user id and token for outgoing calls.
func (s *Store) Credentials() (userID, token string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return "", "", false
	}
	return s.rec.UserID, s.rec.Token, true
}

// UserID returns the logged-in user's id, or "" when logged out.
func (s *Store) UserID() string {
	id, _, _ := s.Credentials()
	return id
}

// IsAuthenticated reports whether a credential pair is held.
func (s *Store) IsAuthenticated() bool {
	_, _, ok := s.Credentials()
	return ok
}

// Clear drops the in-memory record and deletes the persisted one.
func (s *Store) Clear() {
	s.mu.Lock()
	s.rec = nil
	s.mu.Unlock()
	s.removeFile()
}

// Logout clears the session and broadcasts the logout signal.
func (s *Store) Logout() {
	s.Clear()
	if s.bus != nil {
		s.bus.Publish(signal.Logout)
	}
}

func (s *Store) removeFile() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("could not remove session record", zap.String("path", s.path), zap.Error(err))
	}
}

// recordFromFile reads a Record from a JSON file.
func recordFromFile(file string) (*Record, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec := &Record{}
	if err := json.NewDecoder(f).Decode(rec); err != nil {
		return nil, fmt.Errorf("failed to decode session from file %s: %w", file, err)
	}
	return rec, nil
}

// saveRecord writes rec as JSON, readable by the owner only.
func saveRecord(path string, rec *Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to save session to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(rec)
}
