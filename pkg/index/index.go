// Package index remembers which calendar event mirrors each submitted
// manhour unit, so a re-run patches the event instead of adding another.
package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the index file inside the config directory.
const FileName = "events.json"

// Key identifies a unit by task and day.
func Key(taskID string, day time.Time) string {
	return taskID + "@" + day.Format("2006-01-02")
}

type EventIndex struct {
	Mappings map[string]string `json:"mappings"`
	Path     string            `json:"-"`
	mu       sync.RWMutex
	dirty    bool
}

// Open loads the index at path. A missing file is an empty index.
func Open(path string) (*EventIndex, error) {
	idx := &EventIndex{
		Mappings: make(map[string]string),
		Path:     path,
	}
	if _, err := os.Stat(path); err == nil {
		if err := idx.load(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *EventIndex) load() error {
	f, err := os.Open(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	m := make(map[string]string)
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	idx.Mappings = m
	return nil
}

// Save writes the index if it changed since the last save.
func (idx *EventIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(idx.Path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(idx.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(idx.Mappings); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

func (idx *EventIndex) Get(key string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Mappings[key]
}

func (idx *EventIndex) Set(key, eventID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Mappings[key] != eventID {
		idx.Mappings[key] = eventID
		idx.dirty = true
	}
}

func (idx *EventIndex) Remove(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.Mappings[key]; exists {
		delete(idx.Mappings, key)
		idx.dirty = true
	}
}

// Len is the number of mirrored units.
func (idx *EventIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.Mappings)
}
