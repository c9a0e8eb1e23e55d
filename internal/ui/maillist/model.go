package maillist

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailgate/internal/keys"
	"github.com/nhle/mailgate/internal/model"
	"github.com/nhle/mailgate/internal/theme"
	"github.com/nhle/mailgate/internal/ui"
)

// Model is the message list pane.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	folder string
	width  int
	height int
}

// New creates a new message list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Mails"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	// Quitting is owned by the root model.
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ForceQuit.SetEnabled(false)

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetMessages replaces the rows. The cursor stays on the same UID when it
// is still listed.
func (m *Model) SetMessages(folder string, msgs []model.MessageSummary, viewedUID string) tea.Cmd {
	current := m.SelectedUID()
	sameFolder := folder == m.folder
	m.folder = folder

	if folder == "" {
		m.list.Title = "Mails"
	} else {
		m.list.Title = folder
	}

	items := make([]list.Item, len(msgs))
	cursor := 0
	for i, msg := range msgs {
		items[i] = MailItem{Summary: msg, Viewed: msg.UID == viewedUID}
		if sameFolder && msg.UID == current {
			cursor = i
		}
	}

	cmd := m.list.SetItems(items)
	m.list.Select(cursor)
	return cmd
}

// SelectedUID returns the UID under the cursor, or "".
func (m Model) SelectedUID() string {
	item, ok := m.list.SelectedItem().(MailItem)
	if !ok {
		return ""
	}
	return item.Summary.UID
}

// Len returns the number of rows.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Update handles messages for the message list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		uid := m.SelectedUID()

		switch {
		case key.Matches(msg, m.keys.Select):
			if uid == "" {
				return m, nil
			}
			return m, func() tea.Msg { return ui.SelectMessageMsg{UID: uid} }

		case key.Matches(msg, m.keys.Delete):
			if uid == "" {
				return m, nil
			}
			return m, func() tea.Msg { return ui.DeleteMessageMsg{UID: uid} }

		case key.Matches(msg, m.keys.ToggleUnread):
			if uid == "" {
				return m, nil
			}
			return m, func() tea.Msg { return ui.ToggleUnreadMsg{UID: uid} }
		}
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the message list.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.folder == "" {
		return style.Render("Select a folder.")
	}
	return style.Render("No messages in " + m.folder + ".")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
