// Package journal keeps a local record of what each batch submission wrote,
// so units committed before a batch stopped stay visible.
package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileName is the journal file inside the config directory.
const FileName = "journal.json"

// Entry is one submitted unit.
type Entry struct {
	TaskID      string    `json:"task_id" yaml:"task_id"`
	Date        string    `json:"date" yaml:"date"`
	Hours       float64   `json:"hours" yaml:"hours"`
	ManhourID   string    `json:"manhour_id,omitempty" yaml:"manhour_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at" yaml:"submitted_at"`
}

// Batch is every unit one batch committed, plus how it ended.
type Batch struct {
	ID         string    `json:"id" yaml:"id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	TotalHours float64   `json:"total_hours" yaml:"total_hours"`
	From       string    `json:"from" yaml:"from"`
	To         string    `json:"to" yaml:"to"`
	Entries    []Entry   `json:"entries" yaml:"entries"`
	Success    bool      `json:"success" yaml:"success"`
	Errors     []string  `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Hours is the total of the committed entries.
func (b Batch) Hours() float64 {
	var sum float64
	for _, e := range b.Entries {
		sum += e.Hours
	}
	return sum
}

type Journal struct {
	Batches map[string]*Batch `json:"batches"`
	Path    string            `json:"-"`

	mu    sync.Mutex
	dirty bool
}

// Open loads the journal at path. A missing file is an empty journal.
func Open(path string) (*Journal, error) {
	j := &Journal{
		Path:    path,
		Batches: make(map[string]*Batch),
	}
	if _, err := os.Stat(path); err == nil {
		if err := j.load(); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (j *Journal) load() error {
	f, err := os.Open(j.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(j); err != nil {
		return err
	}
	if j.Batches == nil {
		j.Batches = make(map[string]*Batch)
	}
	return nil
}

// Save writes the journal if it changed since the last save.
func (j *Journal) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(j.Path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(j.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(j); err != nil {
		return err
	}
	j.dirty = false
	return nil
}

// Start opens the batch described by header. Starting an id twice keeps
// the first one.
func (j *Journal) Start(header Batch) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, exists := j.Batches[header.ID]; exists {
		return
	}
	b := header
	b.Entries = nil
	j.Batches[b.ID] = &b
	j.dirty = true
}

// Record appends a committed unit to batch id, opening it if needed.
func (j *Journal) Record(id string, e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	b, ok := j.Batches[id]
	if !ok {
		b = &Batch{ID: id, StartedAt: e.SubmittedAt}
		j.Batches[id] = b
	}
	b.Entries = append(b.Entries, e)
	j.dirty = true
}

// Finish stores how batch id ended.
func (j *Journal) Finish(id string, success bool, errs []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	b, ok := j.Batches[id]
	if !ok {
		return
	}
	b.Success = success
	b.Errors = append([]string(nil), errs...)
	j.dirty = true
}

// List returns the batches, newest first.
func (j *Journal) List() []Batch {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Batch, 0, len(j.Batches))
	for _, b := range j.Batches {
		cp := *b
		cp.Entries = append([]Entry(nil), b.Entries...)
		out = append(out, cp)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].StartedAt.Equal(out[b].StartedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].StartedAt.After(out[b].StartedAt)
	})
	return out
}

// Last returns the newest batch.
func (j *Journal) Last() (Batch, bool) {
	list := j.List()
	if len(list) == 0 {
		return Batch{}, false
	}
	return list[0], true
}

// Sweep removes batches started before cutoff and returns them.
func (j *Journal) Sweep(cutoff time.Time) []Batch {
	j.mu.Lock()
	defer j.mu.Unlock()
	var swept []Batch
	for id, b := range j.Batches {
		if b.StartedAt.Before(cutoff) {
			swept = append(swept, *b)
			delete(j.Batches, id)
			j.dirty = true
		}
	}
	return swept
}
