package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Row is one server line in the status table.
type Row struct {
	Name  string
	Port  int
	URL   string
	State string // absent, starting, ready or stale
	PID   int
}

// Snapshot is everything the status view draws in one frame.
type Snapshot struct {
	Mode      string
	Rows      []Row
	Resources *ResourceStats
	Err       error
}

// Running reports whether every row is ready.
func (s Snapshot) Running() bool {
	if len(s.Rows) == 0 {
		return false
	}
	for _, r := range s.Rows {
		if r.State != "ready" {
			return false
		}
	}
	return true
}

func (st *Styles) forState(state string) lipgloss.Style {
	switch state {
	case "ready":
		return st.Running
	case "starting":
		return st.Starting
	case "stale":
		return st.Stale
	default:
		return st.Stopped
	}
}

func stateIcon(state string) string {
	switch state {
	case "ready":
		return "●"
	case "starting":
		return "◐"
	case "stale":
		return "!"
	default:
		return "○"
	}
}

// RenderStatus draws the server table for snap.
func RenderStatus(snap Snapshot) string {
	s := DefaultStyles()
	var b strings.Builder

	b.WriteString(s.Header.Render("devharness · " + snap.Mode + " mode"))
	b.WriteString("\n")

	nameW, urlW := len("SERVER"), len("URL")
	for _, r := range snap.Rows {
		nameW = max(nameW, len(r.Name))
		urlW = max(urlW, len(r.URL))
	}

	header := fmt.Sprintf("  %-*s  %-5s  %-*s  %-9s  %s", nameW, "SERVER", "PORT", urlW, "URL", "STATE", "PID")
	b.WriteString(s.Label.Render(header) + "\n")

	for _, r := range snap.Rows {
		pid := "-"
		if r.PID > 0 {
			pid = strconv.Itoa(r.PID)
		}
		state := s.forState(r.State).Render(fmt.Sprintf("%s %-7s", stateIcon(r.State), r.State))
		fmt.Fprintf(&b, "  %-*s  %-5d  %-*s  %s  %s\n", nameW, r.Name, r.Port, urlW, r.URL, state, pid)
	}

	if snap.Err != nil {
		b.WriteString("\n" + s.Error.Render("  "+snap.Err.Error()) + "\n")
	}
	if snap.Resources != nil {
		b.WriteString(s.Footer.Render(snap.Resources.String()))
		b.WriteString("\n")
	}
	return b.String()
}
