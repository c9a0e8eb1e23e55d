package maillist

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailgate/internal/model"
	"github.com/nhle/mailgate/internal/theme"
)

// MailItem wraps a model.MessageSummary so it can be used in a bubbles/list.
type MailItem struct {
	Summary model.MessageSummary

	// Viewed marks the message shown in the message view.
	Viewed bool
}

// FilterValue returns the string used for fuzzy filtering.
func (i MailItem) FilterValue() string { return i.Summary.Subject }

// Title returns the subject for the list.
func (i MailItem) Title() string { return i.Summary.Subject }

// Description returns sender and date.
func (i MailItem) Description() string {
	return i.Summary.From + " | " + relativeTime(parseDate(i.Summary.Date))
}

// ItemDelegate implements list.ItemDelegate for rendering message rows.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single message row: unread marker, sender, subject and
// age. Read messages are dimmed; the cursor row is highlighted.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MailItem)
	if !ok {
		return
	}

	seen := mi.Summary.Seen()

	marker := " "
	if !seen {
		marker = "●"
	}
	if mi.Viewed {
		marker = theme.ActiveMarkerStyle.Render("▸")
	}

	from := truncate(mi.Summary.From, 24)
	subject := mi.Summary.Subject
	if subject == "" {
		subject = "(no subject)"
	}

	age := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(parseDate(mi.Summary.Date)))

	line := theme.MessageStyle(seen).Render(fmt.Sprintf("%-24s  %s", from, subject))
	line = fmt.Sprintf("%s %s  %s", marker, line, age)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// parseDate reads the gateway date format in local time. Unparseable
// dates yield the zero time.
func parseDate(s string) time.Time {
	t, err := time.ParseInLocation(model.DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02 2006")
	}
}
