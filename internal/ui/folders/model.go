package folders

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailgate/internal/keys"
	"github.com/nhle/mailgate/internal/theme"
	"github.com/nhle/mailgate/internal/ui"
)

// folderItem is one folder row.
type folderItem struct {
	name   string
	loaded bool
}

func (i folderItem) FilterValue() string { return i.name }

type delegate struct{}

func (delegate) Height() int                         { return 1 }
func (delegate) Spacing() int                        { return 0 }
func (delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	fi, ok := item.(folderItem)
	if !ok {
		return
	}

	line := fi.name
	if fi.loaded {
		line = theme.ActiveMarkerStyle.Render("▸ ") + line
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// Model is the folder pane.
type Model struct {
	list list.Model
	keys *keys.KeyMap
}

// New creates the folder pane.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, delegate{}, width, height)
	l.Title = "Folders"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	// Quitting is owned by the root model.
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ForceQuit.SetEnabled(false)

	return Model{list: l, keys: k}
}

// SetFolders replaces the folder rows. The cursor moves to highlighted
// when the list changed, otherwise it stays put.
func (m *Model) SetFolders(names []string, highlighted, loaded string) tea.Cmd {
	changed := len(names) != len(m.list.Items())
	for i, item := range m.list.Items() {
		if changed || item.(folderItem).name != names[i] {
			changed = true
			break
		}
	}

	items := make([]list.Item, len(names))
	for i, name := range names {
		items[i] = folderItem{name: name, loaded: name == loaded}
	}
	cmd := m.list.SetItems(items)

	if changed {
		for i, name := range names {
			if name == highlighted {
				m.list.Select(i)
				break
			}
		}
	}

	return cmd
}

// Selected returns the folder under the cursor, or "".
func (m Model) Selected() string {
	item, ok := m.list.SelectedItem().(folderItem)
	if !ok {
		return ""
	}
	return item.name
}

// Update handles messages for the folder pane.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Select) {
		name := m.Selected()
		if name == "" {
			return m, nil
		}
		return m, func() tea.Msg { return ui.SelectFolderMsg{Folder: name} }
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the folder pane.
func (m Model) View() string {
	return m.list.View()
}

// SetSize updates the pane dimensions.
func (m *Model) SetSize(width, height int) {
	m.list.SetSize(width, height)
}
