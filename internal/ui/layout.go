package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailgate/internal/theme"
)

// Layout splits the terminal into a one-line header, the content area and
// a one-line bottom bar.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout for a terminal of the given size.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentWidth is the width available to views.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight is the height left between header and bottom bar.
func (l Layout) ContentHeight() int {
	return max(l.Height-2, 0)
}

// FolderPaneWidth returns the width of the folder pane: a quarter of the
// screen, at least 16 columns.
func (l Layout) FolderPaneWidth() int {
	return min(max(l.Width/4, 16), l.Width)
}

// MailPaneWidth returns the width left for the message list.
func (l Layout) MailPaneWidth() int {
	return max(l.Width-l.FolderPaneWidth(), 0)
}

// RenderHeader renders the title on the left and status on the right.
func (l Layout) RenderHeader(title, status string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.HeaderStyle.Render(status)
	gap := max(l.Width-lipgloss.Width(left)-lipgloss.Width(right), 0)

	return left + fill(theme.HeaderStyle, gap) + right
}

// RenderStatusBar renders the bottom bar with keyboard hints or a notice.
func (l Layout) RenderStatusBar(text string) string {
	return l.bar(theme.StatusBarStyle, text)
}

// RenderErrorBar renders the bottom bar in the error style.
func (l Layout) RenderErrorBar(text string) string {
	return l.bar(theme.ErrorBarStyle, text)
}

func (l Layout) bar(style lipgloss.Style, text string) string {
	rendered := style.Render(text)
	return rendered + fill(style, max(l.Width-lipgloss.Width(rendered), 0))
}

// fill paints n columns in the background of style.
func fill(style lipgloss.Style, n int) string {
	if n == 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Width(n).
		Background(style.GetBackground()).
		Render("")
}

// Frame stacks header, content and bar, clipping content to the space
// between them.
func (l Layout) Frame(header, content, bar string) string {
	content = lipgloss.NewStyle().
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, bar)
}
