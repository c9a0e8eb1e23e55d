package message

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailgate/internal/keys"
	"github.com/nhle/mailgate/internal/model"
	"github.com/nhle/mailgate/internal/theme"
	"github.com/nhle/mailgate/internal/ui"
)

// Model is the message view component.
type Model struct {
	message  *model.MessageDetail
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new message view model.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the message view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return ui.BackMsg{} }

		case key.Matches(msg, m.keys.Delete):
			if m.message != nil {
				uid := m.message.UID
				return m, func() tea.Msg { return ui.DeleteMessageMsg{UID: uid} }
			}

		case key.Matches(msg, m.keys.ToggleUnread):
			if m.message != nil {
				uid := m.message.UID
				return m, func() tea.Msg { return ui.ToggleUnreadMsg{UID: uid} }
			}

		case key.Matches(msg, m.keys.Attachment):
			if att, ok := m.attachmentFor(msg.String()); ok {
				return m, func() tea.Msg { return ui.OpenAttachmentMsg{Attachment: att} }
			}
			return m, nil
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// attachmentFor maps a digit key to the numbered attachment. Withheld
// attachments are not selectable.
func (m Model) attachmentFor(k string) (model.Attachment, bool) {
	if m.message == nil {
		return model.Attachment{}, false
	}
	n, err := strconv.Atoi(k)
	if err != nil || n < 1 || n > len(m.message.Attachments) {
		return model.Attachment{}, false
	}
	att := m.message.Attachments[n-1]
	return att, att.Downloadable()
}

// View renders the message view.
func (m Model) View() string {
	placeholder := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.message == nil {
		if m.loading {
			return placeholder.Render("Loading message...")
		}
		return placeholder.Render("No message selected")
	}

	return m.viewport.View()
}

// renderContent builds the full message content string for the viewport.
func (m Model) renderContent() string {
	if m.message == nil {
		return ""
	}

	msg := m.message
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	sections = append(sections, titleStyle.Render(subject))
	sections = append(sections, "")

	header := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, fmt.Sprintf("%s %s",
			theme.LabelStyle.Render(fmt.Sprintf("%-6s", label+":")),
			lipgloss.NewStyle().Foreground(theme.ColorWhite).Render(value),
		))
	}
	header("From", msg.From)
	header("To", strings.Join(msg.To, ", "))
	header("Cc", strings.Join(msg.Cc, ", "))
	header("Bcc", strings.Join(msg.Bcc, ", "))
	header("Date", msg.Date)

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", separator, "")

	body := msg.Text
	if strings.TrimSpace(body) == "" {
		body = stripHTML(msg.HTML)
	}
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No content")
	}
	sections = append(sections, body)

	if len(msg.Attachments) > 0 {
		sections = append(sections, "", separator, "")
		sections = append(sections, titleStyle.Render(
			fmt.Sprintf("Attachments (%d)", len(msg.Attachments)),
		))

		for i, att := range msg.Attachments {
			line := fmt.Sprintf("%d. %s", i+1, att.Filename)
			if size := formatSize(att.Size); size != "" {
				line += "  " + theme.LabelStyle.Render(size)
			}
			if !att.Downloadable() {
				verdict := att.AV
				if verdict == "" {
					verdict = "unavailable"
				}
				line = lipgloss.NewStyle().Foreground(theme.ColorGray).Render(line) +
					"  " + theme.WarningStyle.Render(verdict)
			}
			sections = append(sections, line)
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetMessage updates the message being displayed. Scroll position is kept
// when the same message is re-rendered.
func (m *Model) SetMessage(detail *model.MessageDetail) {
	same := m.message != nil && detail != nil && m.message.UID == detail.UID
	m.message = detail
	m.loading = false
	m.viewport.SetContent(m.renderContent())
	if !same {
		m.viewport.GotoTop()
	}
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
}

// UID returns the UID of the displayed message, or "".
func (m Model) UID() string {
	if m.message == nil {
		return ""
	}
	return m.message.UID
}

// SetSize updates the message view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	m.viewport.SetContent(m.renderContent())
}
