package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultLocationTTL is how long a saved location stays valid.
const DefaultLocationTTL = 15 * time.Minute

// LocationStore keeps the location to return to after re-authentication.
// Take is read-and-clear.
type LocationStore interface {
	Save(location string) error
	Take() (location string, ok bool, err error)
}

type savedLocation struct {
	Location string    `json:"location"`
	SavedAt  time.Time `json:"saved_at"`
}

func (s savedLocation) fresh(now time.Time, ttl time.Duration) bool {
	return s.Location != "" && (ttl <= 0 || now.Sub(s.SavedAt) <= ttl)
}

// MemoryLocationStore is a LocationStore scoped to the process.
type MemoryLocationStore struct {
	TTL time.Duration
	Now func() time.Time

	mu    sync.Mutex
	saved *savedLocation
}

func (m *MemoryLocationStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemoryLocationStore) Save(location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = &savedLocation{Location: location, SavedAt: m.now()}
	return nil
}

func (m *MemoryLocationStore) Take() (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.saved
	m.saved = nil
	if s == nil || !s.fresh(m.now(), m.TTL) {
		return "", false, nil
	}
	return s.Location, true, nil
}

// FileLocationStore keeps the saved location in a small JSON file so it
// survives between command invocations.
type FileLocationStore struct {
	Path string
	TTL  time.Duration
	Now  func() time.Time
}

// NewFileLocationStore stores into dir/redirect.json with DefaultLocationTTL.
func NewFileLocationStore(dir string) *FileLocationStore {
	return &FileLocationStore{Path: filepath.Join(dir, "redirect.json"), TTL: DefaultLocationTTL}
}

func (f *FileLocationStore) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *FileLocationStore) Save(location string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return fmt.Errorf("failed to create location directory: %w", err)
	}
	b, err := json.Marshal(savedLocation{Location: location, SavedAt: f.now()})
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, b, 0600)
}

func (f *FileLocationStore) Take() (string, bool, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return "", false, err
	}
	var s savedLocation
	if err := json.Unmarshal(b, &s); err != nil {
		return "", false, nil
	}
	if !s.fresh(f.now(), f.TTL) {
		return "", false, nil
	}
	return s.Location, true, nil
}
