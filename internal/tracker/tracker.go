// Package tracker accumulates readiness waits for one session and merges
// the handoff files written by parallel workers.
package tracker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harshul/devharness/internal/probe"
	"gopkg.in/yaml.v3"
)

// Wait is one recorded WaitUntilReady call.
type Wait struct {
	URL       string    `yaml:"url"`
	Attempts  int       `yaml:"attempts"`
	ElapsedMS int64     `yaml:"elapsed_ms"`
	Ready     bool      `yaml:"ready"`
	Last      string    `yaml:"last"`
	At        time.Time `yaml:"at"`
}

// Elapsed is the wall time of the wait.
func (w Wait) Elapsed() time.Duration {
	return time.Duration(w.ElapsedMS) * time.Millisecond
}

// handoff is the on-disk form of a session.
type handoff struct {
	ID      string    `yaml:"id"`
	Worker  string    `yaml:"worker"`
	Started time.Time `yaml:"started"`
	Waits   []Wait    `yaml:"waits"`
}

// Session collects waits for one worker. It is safe for concurrent use.
type Session struct {
	ID      string
	Worker  string
	Started time.Time

	mu    sync.Mutex
	waits []Wait
}

// NewSession starts a session for worker. An empty worker uses the process ID.
func NewSession(worker string) *Session {
	if worker == "" {
		worker = fmt.Sprintf("pid%d", os.Getpid())
	}
	return &Session{
		ID:      uuid.NewString(),
		Worker:  worker,
		Started: time.Now(),
	}
}

// ObserveWait records r.
func (s *Session) ObserveWait(r probe.WaitReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, Wait{
		URL:       r.URL,
		Attempts:  r.Attempts,
		ElapsedMS: r.Elapsed.Milliseconds(),
		Ready:     r.Ready,
		Last:      string(r.Last),
		At:        time.Now(),
	})
}

// Waits returns a copy of the recorded waits.
func (s *Session) Waits() []Wait {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Wait(nil), s.waits...)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Flush writes the session to <dir>/<worker>-<id>.yaml, replacing any
// earlier flush of the same session.
func (s *Session) Flush(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create tracker directory: %w", err)
	}
	data, err := yaml.Marshal(handoff{
		ID:      s.ID,
		Worker:  s.Worker,
		Started: s.Started,
		Waits:   s.Waits(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	name := unsafeName.ReplaceAllString(s.Worker, "_") + "-" + s.ID + ".yaml"
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write session: %w", err)
	}
	return path, nil
}

// URLStats summarizes the waits for one URL.
type URLStats struct {
	URL      string
	Waits    int
	Failures int
	Attempts int
	Total    time.Duration
	Max      time.Duration
}

// Summary merges every session in a tracker directory.
type Summary struct {
	Sessions int
	Workers  []string
	Waits    int
	Failures int
	Total    time.Duration
	Max      time.Duration
	ByURL    []URLStats
	// Skipped counts handoff files that could not be parsed.
	Skipped int
}

// Aggregate reads every handoff file in dir. A missing directory yields an empty summary.
func Aggregate(dir string) (Summary, error) {
	var sum Summary
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return sum, err
	}

	byURL := make(map[string]*URLStats)
	workers := make(map[string]bool)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			sum.Skipped++
			continue
		}
		var h handoff
		if err := yaml.Unmarshal(data, &h); err != nil || h.ID == "" {
			sum.Skipped++
			continue
		}

		sum.Sessions++
		workers[h.Worker] = true
		for _, w := range h.Waits {
			st, ok := byURL[w.URL]
			if !ok {
				st = &URLStats{URL: w.URL}
				byURL[w.URL] = st
			}
			st.Waits++
			st.Attempts += w.Attempts
			st.Total += w.Elapsed()
			st.Max = max(st.Max, w.Elapsed())

			sum.Waits++
			sum.Total += w.Elapsed()
			sum.Max = max(sum.Max, w.Elapsed())
			if !w.Ready {
				st.Failures++
				sum.Failures++
			}
		}
	}

	for w := range workers {
		sum.Workers = append(sum.Workers, w)
	}
	sort.Strings(sum.Workers)
	for _, st := range byURL {
		sum.ByURL = append(sum.ByURL, *st)
	}
	sort.Slice(sum.ByURL, func(i, j int) bool { return sum.ByURL[i].URL < sum.ByURL[j].URL })
	return sum, nil
}

// Clear removes every handoff file in dir.
func Clear(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	var errs []error
	for _, file := range files {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
