package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds every binding of the mail client. Views match against the
// shared instance so help output and behavior never drift apart.
type KeyMap struct {
	Down, Up   key.Binding
	Select     key.Binding
	SwitchPane key.Binding
	Back, Quit key.Binding
	Command    key.Binding
	Help       key.Binding

	// Refresh re-lists the loaded folder.
	Refresh key.Binding

	Delete       key.Binding
	ToggleUnread key.Binding

	// Attachment opens the n-th attachment of the viewed message.
	Attachment key.Binding

	Login key.Binding
}

func bind(help, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down:       bind("j/↓", "down", "j", "down"),
		Up:         bind("k/↑", "up", "k", "up"),
		Select:     bind("enter", "open", "enter"),
		SwitchPane: bind("tab", "folders/mails", "tab"),
		Back:       bind("esc", "back", "esc"),
		Quit:       bind("q", "quit", "q"),
		Command:    bind(":", "command palette", ":"),
		Help:       bind("?", "toggle help", "?"),
		Refresh:    bind("r", "refresh", "r"),

		Delete:       bind("d", "delete", "d"),
		ToggleUnread: bind("u", "mark unread", "u"),
		Attachment:   bind("1-9", "open attachment", "1", "2", "3", "4", "5", "6", "7", "8", "9"),

		Login: bind("L", "log in", "L"),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Select, k.Back,
		k.Quit, k.Help,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.SwitchPane, k.Back, k.Quit},
		{k.Command, k.Help, k.Refresh, k.Login},
		{k.Delete, k.ToggleUnread, k.Attachment},
	}
}
