// Package framework detects which frontend stack the demo app is running.
package framework

import (
	"os"
	"path/filepath"
	"strings"
)

// Mode is the active framework of the demo application.
type Mode string

const (
	Vite   Mode = "vite"
	NextJS Mode = "nextjs"

	// Default applies whenever the flag file is missing or unreadable.
	Default = Vite
)

// Modes lists every supported mode.
var Modes = []Mode{Vite, NextJS}

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.TrimSpace(s)) {
	case Vite:
		return Vite, true
	case NextJS:
		return NextJS, true
	default:
		return "", false
	}
}

func (m Mode) String() string { return string(m) }

// Detector reads the persisted mode flag. The file is read on every call so
// that a mode change made by a build tool between test runs is observed.
type Detector struct {
	path string
}

// NewDetector creates a detector for the flag file at path.
func NewDetector(path string) *Detector {
	return &Detector{path: path}
}

// Path returns the flag file location.
func (d *Detector) Path() string {
	return d.path
}

// Mode returns the current mode, falling back to Default on any failure.
func (d *Detector) Mode() Mode {
	if d == nil || d.path == "" {
		return Default
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		return Default
	}
	if mode, ok := ParseMode(string(data)); ok {
		return mode
	}
	return Default
}

// IsNextJS reports whether Next.js mode is active.
func (d *Detector) IsNextJS() bool { return d.Mode() == NextJS }

// IsVite reports whether Vite mode is active.
func (d *Detector) IsVite() bool { return d.Mode() == Vite }

// Write persists mode. The harness normally only reads the flag; this backs
// the `mode set` command which stands in for the external build tool.
func (d *Detector) Write(mode Mode) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(d.path), ".framework-mode-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(string(mode) + "\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.path)
}
