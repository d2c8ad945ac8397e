package ui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// PollFunc gathers a fresh snapshot. It runs off the UI goroutine.
type PollFunc func() Snapshot

// watchKeys defines the key bindings for the status view
type watchKeys struct {
	Quit    key.Binding
	Refresh key.Binding
	Up      key.Binding
	Down    key.Binding
}

func defaultWatchKeys() watchKeys {
	return watchKeys{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
	}
}

type tickMsg time.Time

type snapshotMsg Snapshot

// WatchModel is the bubbletea model behind `status --watch`.
type WatchModel struct {
	poll     PollFunc
	interval time.Duration
	keys     watchKeys
	styles   *Styles
	spinner  spinner.Model
	viewport viewport.Model

	snap     Snapshot
	polling  bool
	ready    bool
	lastPoll time.Time
}

// NewWatchModel creates the status view. interval defaults to one second.
func NewWatchModel(poll PollFunc, interval time.Duration) WatchModel {
	if interval <= 0 {
		interval = time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	styles := DefaultStyles()
	sp.Style = styles.Title
	return WatchModel{
		poll:     poll,
		interval: interval,
		keys:     defaultWatchKeys(),
		styles:   styles,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		polling:  true,
	}
}

// Snapshot returns the most recent snapshot received.
func (m WatchModel) Snapshot() Snapshot { return m.snap }

// Init starts the first poll; NewWatchModel already marks it in flight.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.pollCmd(), m.tickCmd())
}

func (m WatchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m WatchModel) pollCmd() tea.Cmd {
	poll := m.poll
	return func() tea.Msg {
		return snapshotMsg(poll())
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			if !m.polling {
				m.polling = true
				cmds = append(cmds, m.pollCmd())
			}
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-4, 3)
		m.viewport.SetContent(RenderStatus(m.snap))

	case tickMsg:
		cmds = append(cmds, m.tickCmd())
		if !m.polling {
			m.polling = true
			cmds = append(cmds, m.pollCmd())
		}

	case snapshotMsg:
		m.snap = Snapshot(msg)
		m.polling = false
		m.ready = true
		m.lastPoll = time.Now()
		m.viewport.SetContent(RenderStatus(m.snap))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m WatchModel) View() string {
	if !m.ready {
		return m.spinner.View() + " checking servers..."
	}

	indicator := "  "
	if m.polling {
		indicator = m.spinner.View() + " "
	}
	help := m.styles.HelpKey.Render("q") + m.styles.HelpDesc.Render(" quit  ") +
		m.styles.HelpKey.Render("r") + m.styles.HelpDesc.Render(" refresh  ") +
		m.styles.HelpDesc.Render("updated "+m.lastPoll.Format("15:04:05"))
	return m.viewport.View() + "\n" + indicator + help
}

// WatchStatus runs the live status view until the user quits or ctx is done.
func WatchStatus(ctx context.Context, poll PollFunc, interval time.Duration) error {
	p := tea.NewProgram(NewWatchModel(poll, interval), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
