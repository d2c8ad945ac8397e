package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type Spinner struct {
	msg     string
	running bool
}

func NewSpinner(message string) *Spinner {
	return &Spinner{msg: message}
}

func (s *Spinner) Start() {
	if s == nil || s.running {
		return
	}
	s.running = true
	fmt.Println("⏳", s.msg)
}

func (s *Spinner) Stop() {
	if s == nil || !s.running {
		return
	}
	s.running = false
	fmt.Println("Done")
}

func Success(msg string) {
	fmt.Println("✅", msg)
}

func Info(msg string) {
	fmt.Println("ℹ️", msg)
}

func Warn(msg string) {
	fmt.Println("⚠️ ", msg)
}

func Fail(msg string) {
	fmt.Println("❌", msg)
}

// PrintHeader prints a styled header
func PrintHeader(text string) {
	fmt.Println(DefaultStyles().Title.MarginBottom(1).Render("  " + text))
}

// PrintHighlight prints a label/value pair
func PrintHighlight(label, value string) {
	s := DefaultStyles()
	fmt.Println("  " + s.Label.Render(label+":") + " " + s.Value.Render(value))
}

// PrintDivider prints a styled divider
func PrintDivider() {
	fmt.Println(DefaultStyles().Subtle.Render("  " + strings.Repeat("─", 50)))
}

// PrintBox prints text in a styled box
func PrintBox(title, content string) {
	s := DefaultStyles()
	if title != "" {
		fmt.Println(s.Title.Render("  " + title))
	}
	fmt.Println(s.Box.Render(content))
}

// confirmModel is a yes/no prompt driven by arrow keys.
type confirmModel struct {
	question    string
	description string
	selected    bool // true = Yes, false = No
	confirmed   bool
	cancelled   bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "left", "h", "y", "Y":
			m.selected = true
		case "right", "l", "n", "N":
			m.selected = false
		case "tab":
			m.selected = !m.selected
		case "enter":
			m.confirmed = true
			return m, tea.Quit
		case "ctrl+c", "esc", "q":
			m.cancelled = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m confirmModel) View() string {
	s := DefaultStyles()
	var b strings.Builder

	b.WriteString(s.Title.Render("? "+m.question) + "\n")
	if m.description != "" {
		b.WriteString(s.Subtle.Render("  "+m.description) + "\n")
	}

	yes, no := s.Subtle.Render("Yes"), s.Subtle.Render("No")
	yesCursor, noCursor := "  ", "  "
	cursor := s.Title.Render("❯ ")
	if m.selected {
		yes, yesCursor = s.Running.Render("Yes"), cursor
	} else {
		no, noCursor = s.Running.Render("No"), cursor
	}

	b.WriteString("\n" + yesCursor + yes + "    " + noCursor + no + "\n\n")
	b.WriteString(s.Subtle.Render("  ← → to select • enter to confirm • esc to cancel"))
	return b.String()
}

// Confirm asks a yes/no question. Cancelling counts as no.
func Confirm(question, description string, defaultYes bool) (bool, error) {
	model, err := tea.NewProgram(confirmModel{
		question:    question,
		description: description,
		selected:    defaultYes,
	}).Run()
	if err != nil {
		return false, err
	}
	result := model.(confirmModel)
	return result.selected && result.confirmed && !result.cancelled, nil
}
