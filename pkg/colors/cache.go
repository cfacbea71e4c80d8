// Package colors hands out calendar colors per project, recycling the least
// recently used one when all are taken.
package colors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const (
	// FileName is the cache file inside the config directory.
	FileName = "project_colors.json"

	// NoProject is the color for units whose task has no project (graphite).
	NoProject = "8"

	// Google Calendar event colors run from 1 to 11.
	firstColor = 1
	lastColor  = 11
)

type ProjectState struct {
	ColorID  string    `json:"color_id"`
	LastUsed time.Time `json:"last_used"`
}

type ColorCache struct {
	Path     string
	Projects map[string]*ProjectState `json:"projects"`
	// Now is the clock; nil means time.Now.
	Now func() time.Time

	mu    sync.Mutex
	dirty bool
}

// Open loads the cache at path. A missing file is an empty cache.
func Open(path string) (*ColorCache, error) {
	cache := &ColorCache{
		Path:     path,
		Projects: make(map[string]*ProjectState),
	}
	if _, err := os.Stat(path); err == nil {
		if err := cache.load(); err != nil {
			return nil, err
		}
	}
	return cache, nil
}

func (c *ColorCache) load() error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	projects := make(map[string]*ProjectState)
	if err := json.NewDecoder(f).Decode(&projects); err != nil {
		return err
	}
	c.Projects = projects
	return nil
}

func (c *ColorCache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Save writes the cache if it changed since the last save.
func (c *ColorCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(c.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(c.Projects); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// ColorFor returns the color id for a project and marks it as used.
func (c *ColorCache) ColorFor(projectID string) string {
	if projectID == "" {
		return NoProject
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.Projects[projectID]; ok {
		state.LastUsed = c.now()
		c.dirty = true
		return state.ColorID
	}
	return c.assign(projectID)
}

func (c *ColorCache) assign(projectID string) string {
	used := make(map[string]bool, len(c.Projects))
	for _, s := range c.Projects {
		used[s.ColorID] = true
	}
	for i := firstColor; i <= lastColor; i++ {
		id := strconv.Itoa(i)
		if !used[id] {
			c.Projects[projectID] = &ProjectState{ColorID: id, LastUsed: c.now()}
			c.dirty = true
			return id
		}
	}

	// Every color is in use: take the one idle the longest.
	var oldest string
	var oldestTime time.Time
	for p, s := range c.Projects {
		if oldest == "" || s.LastUsed.Before(oldestTime) {
			oldest, oldestTime = p, s.LastUsed
		}
	}
	recycled := c.Projects[oldest].ColorID
	delete(c.Projects, oldest)
	c.Projects[projectID] = &ProjectState{ColorID: recycled, LastUsed: c.now()}
	c.dirty = true
	return recycled
}
