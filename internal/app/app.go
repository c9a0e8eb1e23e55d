package app

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/nhle/mailgate/internal/engine"
	"github.com/nhle/mailgate/internal/keys"
	appsync "github.com/nhle/mailgate/internal/sync"
	"github.com/nhle/mailgate/internal/theme"
	"github.com/nhle/mailgate/internal/ui"
	"github.com/nhle/mailgate/internal/ui/command"
	"github.com/nhle/mailgate/internal/ui/folders"
	helpview "github.com/nhle/mailgate/internal/ui/help"
	"github.com/nhle/mailgate/internal/ui/login"
	"github.com/nhle/mailgate/internal/ui/maillist"
	"github.com/nhle/mailgate/internal/ui/message"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewMailbox
	ViewMessage
	ViewHelp
	ViewCommand
)

// pane is the half of the mailbox view receiving keys.
type pane int

const (
	paneFolders pane = iota
	paneMails
)

// Model is the root Bubble Tea model. It routes keys to the active view,
// turns view messages into engine calls and re-renders from engine
// snapshots.
type Model struct {
	currentView  ViewState
	previousView ViewState
	focus        pane
	layout       ui.Layout
	keys         *keys.KeyMap
	engine       Engine
	refresher    *appsync.Refresher
	log          zerolog.Logger

	loginView   login.Model
	folderPane  folders.Model
	mailPane    maillist.Model
	messageView message.Model
	helpView    helpview.Model
	commandView command.Model
	spinner     spinner.Model

	// loginInit starts the form built in New.
	loginInit tea.Cmd

	snap   engine.State
	ready  bool
	notice string
	errMsg string
}

// New creates the root model. identity and secret prefill the login form.
// refresher may be nil to disable background refreshes.
func New(eng Engine, refresher *appsync.Refresher, identity, secret string, log zerolog.Logger) Model {
	k := keys.DefaultKeyMap()
	loginView := login.New(identity, secret, 80, 24)
	loginInit := loginView.Start()

	return Model{
		currentView: ViewLogin,
		focus:       paneFolders,
		keys:        k,
		engine:      eng,
		refresher:   refresher,
		log:         log,
		loginView:   loginView,
		loginInit:   loginInit,
		folderPane:  folders.New(k, 20, 24),
		mailPane:    maillist.New(k, 60, 24),
		messageView: message.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		spinner:     spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		snap:        eng.Snapshot(),
	}
}

// Init shows the login form.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loginInit, m.spinner.Tick)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		// Forward to the login view so huh can calculate its layout.
		if m.currentView == ViewLogin {
			return m.updateActiveView(msg)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case login.SubmitMsg:
		m.notice = "Logging in..."
		m.errMsg = ""
		return m, m.login(msg.Identity, msg.Secret)

	case login.CancelMsg:
		if m.snap.Identity == "" {
			return m.quit()
		}
		m.currentView = ViewMailbox
		return m, nil

	case loginResultMsg:
		m.notice = ""
		m.sync()
		if msg.err != nil {
			m.loginView.SetError(describeLoginError(msg.err))
			m.currentView = ViewLogin
			return m, m.loginView.Start()
		}
		m.loginView.SetError("")
		m.errMsg = ""
		m.currentView = ViewMailbox
		m.focus = paneFolders
		return m, tea.Batch(
			m.selectFolder(m.snap.Highlighted),
			m.startRefresher(),
		)

	case ui.SelectFolderMsg:
		m.notice = "Loading " + msg.Folder + "..."
		return m, m.selectFolder(msg.Folder)

	case ui.SelectMessageMsg:
		m.previousView = ViewMailbox
		m.currentView = ViewMessage
		if m.messageView.UID() != msg.UID {
			m.messageView.SetMessage(nil)
			m.messageView.SetLoading(true)
		}
		return m, m.selectMessage(msg.UID)

	case ui.DeleteMessageMsg:
		return m, m.deleteMessage(msg.UID)

	case ui.ToggleUnreadMsg:
		return m, m.toggleUnread(msg.UID)

	case ui.OpenAttachmentMsg:
		m.notice = "Downloading " + msg.Attachment.Filename + "..."
		return m, m.openAttachment(msg.Attachment)

	case ui.BackMsg:
		m.currentView = ViewMailbox
		m.focus = paneMails
		return m, nil

	case intentResultMsg:
		return m.handleResult(msg)

	case appsync.RefreshResultMsg:
		m.sync()
		if msg.AuthError != nil {
			m.errMsg = msg.AuthError.Message
		}
		if m.refresher == nil {
			return m, nil
		}
		return m, m.refresher.WaitForNextResult()

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.currentView == ViewLogin {
			break
		}
		if model, cmd, handled := m.handleGlobalKey(msg); handled {
			return model, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work across views.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if m.currentView == ViewCommand {
		if key.Matches(msg, m.keys.Back) {
			m.currentView = m.previousView
			return m, nil, true
		}
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case m.currentView == ViewHelp && key.Matches(msg, m.keys.Back):
		m.currentView = m.previousView
		return m, nil, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m, m.commandView.Reset(), true

	case key.Matches(msg, m.keys.Login):
		m.currentView = ViewLogin
		return m, m.loginView.Start(), true

	case key.Matches(msg, m.keys.Quit) && m.currentView == ViewMailbox:
		model, cmd := m.quit()
		return model, cmd, true

	case key.Matches(msg, m.keys.Refresh) &&
		(m.currentView == ViewMailbox || m.currentView == ViewMessage):
		if m.snap.Folder == "" {
			return m, nil, true
		}
		m.notice = "Refreshing " + m.snap.Folder + "..."
		return m, m.refresh(), true

	case key.Matches(msg, m.keys.SwitchPane) && m.currentView == ViewMailbox:
		if m.focus == paneFolders {
			m.focus = paneMails
		} else {
			m.focus = paneFolders
		}
		return m, nil, true
	}

	return m, nil, false
}

// handleResult re-renders from a fresh snapshot and reports the outcome of
// an engine call.
func (m Model) handleResult(msg intentResultMsg) (tea.Model, tea.Cmd) {
	m.sync()
	m.notice = ""

	if msg.err != nil {
		superseded := errors.Is(msg.err, engine.ErrSuperseded)
		if !superseded {
			m.errMsg = describeError(msg.err)
			m.log.Debug().Str("intent", string(msg.intent)).Err(msg.err).Msg("intent failed")
		}
		// A newer selection fills the view itself; anything else that
		// superseded the fetch leaves nothing to show.
		if msg.intent == engine.IntentSelectMessage && m.snap.Message == nil &&
			!m.snap.Pending(engine.IntentSelectMessage) {
			m.leaveMessageView()
		}
		return m, nil
	}

	m.errMsg = ""

	switch msg.intent {
	case engine.IntentSelectFolder:
		m.focus = paneMails
	case engine.IntentDeleteMessage:
		m.notice = "Message deleted"
		if m.snap.Message == nil {
			m.leaveMessageView()
		}
	case engine.IntentToggleUnread:
		m.notice = "Marked unread"
	case engine.IntentOpenAttachment:
		if msg.location != "" {
			m.notice = "Saved to " + msg.location
		}
	}

	return m, nil
}

// leaveMessageView returns to the mailbox when the message view has nothing
// left to show.
func (m *Model) leaveMessageView() {
	if m.currentView != ViewMessage {
		return
	}
	m.messageView.SetLoading(false)
	m.currentView = ViewMailbox
	m.focus = paneMails
}

// sync copies the engine state into the views.
func (m *Model) sync() {
	m.snap = m.engine.Snapshot()

	m.folderPane.SetFolders(m.snap.Folders, m.snap.Highlighted, m.snap.Folder)
	m.mailPane.SetMessages(m.snap.Folder, m.snap.Messages, m.snap.MessageUID)

	switch {
	case m.snap.Message != nil:
		m.messageView.SetMessage(m.snap.Message)
	case !m.snap.Pending(engine.IntentSelectMessage):
		m.messageView.SetMessage(nil)
	}
}

// executeCommand handles a command from the command palette.
func (m Model) executeCommand(cmd command.CommandMsg) (tea.Model, tea.Cmd) {
	switch cmd.Name {
	case "folder":
		m.currentView = ViewMailbox
		m.notice = "Loading " + cmd.Arg + "..."
		return m, m.selectFolder(cmd.Arg)
	case "refresh":
		if m.snap.Folder == "" {
			return m, nil
		}
		return m, m.refresh()
	case "login":
		m.currentView = ViewLogin
		return m, m.loginView.Start()
	case "quit":
		return m.quit()
	default:
		return m, nil
	}
}

// startRefresher is a no-op after the first login.
func (m Model) startRefresher() tea.Cmd {
	if m.refresher == nil {
		return nil
	}
	return m.refresher.Start()
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.refresher != nil {
		m.refresher.Stop()
	}
	return m, tea.Quit
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewMailbox:
		if m.focus == paneFolders {
			m.folderPane, cmd = m.folderPane.Update(msg)
		} else {
			m.mailPane, cmd = m.mailPane.Update(msg)
		}
	case ViewMessage:
		m.messageView, cmd = m.messageView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

func (m *Model) resize() {
	w := m.layout.ContentWidth()
	h := m.layout.ContentHeight()

	// Pane borders take two columns and two rows.
	m.folderPane.SetSize(max(m.layout.FolderPaneWidth()-2, 0), max(h-2, 0))
	m.mailPane.SetSize(max(m.layout.MailPaneWidth()-2, 0), max(h-2, 0))
	m.loginView.SetSize(w, h)
	m.messageView.SetSize(w, h)
	m.helpView.SetSize(w, h)
	m.commandView.SetSize(w, h)
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "mailgate"
	if m.snap.Identity != "" {
		title += " | " + m.snap.Identity
	}
	header := m.layout.RenderHeader(title, m.activity())

	var bar string
	if m.errMsg != "" {
		bar = m.layout.RenderErrorBar(m.errMsg)
	} else {
		bar = m.layout.RenderStatusBar(m.keyHints())
	}

	return m.layout.Frame(header, m.renderContent(), bar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewLogin:
		return m.loginView.View()
	case ViewMailbox:
		return m.renderMailbox()
	case ViewMessage:
		return m.messageView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

func (m Model) renderMailbox() string {
	folderStyle, mailStyle := theme.FocusedPaneStyle, theme.PaneStyle
	if m.focus == paneMails {
		folderStyle, mailStyle = theme.PaneStyle, theme.FocusedPaneStyle
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		folderStyle.Render(m.folderPane.View()),
		mailStyle.Render(m.mailPane.View()),
	)
}

// activity summarizes outstanding gateway calls for the header.
func (m Model) activity() string {
	// Read live: calls started since the last sync are not in m.snap.
	pending := 0
	for _, status := range m.engine.Snapshot().Actions {
		pending += status.InFlight
	}
	if pending > 0 {
		return fmt.Sprintf("%s working (%d)", m.spinner.View(), pending)
	}
	if m.refresher != nil && m.refresher.Status().State == appsync.RefreshError {
		return "refresh failed"
	}
	if m.snap.Identity == "" {
		return "logged out"
	}
	return "idle"
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.notice != "" {
		return m.notice
	}

	switch m.currentView {
	case ViewLogin:
		return "enter submit | esc cancel"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewMessage:
		return "esc back | d delete | u unread | 1-9 attachment | j/k scroll"
	default:
		if m.focus == paneFolders {
			return "q quit | ? help | enter open folder | tab mails | r refresh | L login"
		}
		return "q quit | ? help | enter read | d delete | u unread | tab folders"
	}
}
