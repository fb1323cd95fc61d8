package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/content-portal/internal/theme"
)

// CommandMsg is emitted with the canonical name of the command to run.
type CommandMsg string

// Command is one palette entry.
type Command struct {
	Name    string
	Aliases []string
	Help    string
}

// Commands lists the palette commands understood by the application.
var Commands = []Command{
	{Name: "refresh", Aliases: []string{"sync"}, Help: "poll the server now"},
	{Name: "notifications", Aliases: []string{"inbox"}, Help: "open the approval inbox"},
	{Name: "jobs", Help: "browse job postings"},
	{Name: "articles", Aliases: []string{"news"}, Help: "browse articles"},
	{Name: "clear", Help: "reset the feed filters"},
	{Name: "mark all seen", Help: "mark every notification seen"},
	{Name: "digest", Help: "mail the unseen digest"},
	{Name: "logout", Help: "forget the stored token"},
	{Name: "quit", Aliases: []string{"q"}, Help: "leave the portal"},
}

// Resolve maps input to a command name. Names and aliases match exactly;
// otherwise input must be the prefix of exactly one name.
func Resolve(input string) (string, error) {
	input = strings.ToLower(strings.Join(strings.Fields(input), " "))
	if input == "" {
		return "", errors.New("empty command")
	}

	var matches []string
	for _, c := range Commands {
		if c.Name == input {
			return c.Name, nil
		}
		for _, a := range c.Aliases {
			if a == input {
				return c.Name, nil
			}
		}
		if strings.HasPrefix(c.Name, input) {
			matches = append(matches, c.Name)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("unknown command %q", input)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous: %s", input, strings.Join(matches, ", "))
	}
}

func suggestions() []string {
	var out []string
	for _, c := range Commands {
		out = append(out, c.Name)
		out = append(out, c.Aliases...)
	}
	return out
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	err    error
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "refresh, jobs, mark all seen ..."
	ti.ShowSuggestions = true
	ti.SetSuggestions(suggestions())
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette. An input that does
// not resolve stays in the field with the reason shown under it.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEnter {
		raw := m.input.Value()
		if strings.TrimSpace(raw) == "" {
			return m, nil
		}
		name, err := Resolve(raw)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.input.Reset()
		return m, func() tea.Msg { return CommandMsg(name) }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if _, ok := msg.(tea.KeyMsg); ok {
		m.err = nil
	}
	return m, cmd
}

// Err is the reason the last input was rejected, or nil.
func (m Model) Err() error { return m.err }

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	lines := []string{titleStyle.Render("Run a portal command"), m.input.View()}
	if m.err != nil {
		lines = append(lines, theme.ErrorStyle.Render(m.err.Error()))
	}

	help := make([]string, 0, len(Commands))
	for _, c := range Commands {
		help = append(help, fmt.Sprintf("%-14s %s", c.Name, c.Help))
	}
	lines = append(lines, "", theme.HelpStyle.Render(strings.Join(help, "\n")))

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input and drops a stale error.
func (m *Model) Focus() tea.Cmd {
	m.err = nil
	return m.input.Focus()
}
