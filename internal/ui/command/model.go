package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailgate/internal/theme"
)

// Spec describes one palette command.
type Spec struct {
	Name    string
	Usage   string
	Summary string

	// Arg is set when the command requires an argument.
	Arg bool
}

// Commands lists what the palette accepts.
var Commands = []Spec{
	{Name: "folder", Usage: "folder <name>", Summary: "load a folder by name", Arg: true},
	{Name: "refresh", Usage: "refresh", Summary: "reload the current folder"},
	{Name: "login", Usage: "login", Summary: "show the login form"},
	{Name: "quit", Usage: "quit", Summary: "exit mailgate"},
}

// CommandMsg is emitted when the user executes a valid command.
type CommandMsg struct {
	Name string
	Arg  string
}

// Parse splits an input line into a command. Unknown commands and missing
// arguments are errors.
func Parse(line string) (CommandMsg, error) {
	line = strings.TrimSpace(line)
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	for _, c := range Commands {
		if c.Name != name {
			continue
		}
		if c.Arg && arg == "" {
			return CommandMsg{}, fmt.Errorf("usage: %s", c.Usage)
		}
		return CommandMsg{Name: name, Arg: arg}, nil
	}
	return CommandMsg{}, fmt.Errorf("unknown command %q", name)
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
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		line := m.input.Value()
		if strings.TrimSpace(line) == "" {
			return m, nil
		}
		parsed, err := Parse(line)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.input.Reset()
		return m, func() tea.Msg { return parsed }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Command Palette"), m.input.View()}
	if m.err != nil {
		parts = append(parts, "", theme.WarningStyle.Render(m.err.Error()))
	}

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 0)).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Reset clears input and error and focuses the input.
func (m *Model) Reset() tea.Cmd {
	m.input.Reset()
	m.err = nil
	return m.input.Focus()
}
