package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailgate/internal/credential"
	"github.com/nhle/mailgate/internal/engine"
	"github.com/nhle/mailgate/internal/mailbox"
	"github.com/nhle/mailgate/internal/model"
	"github.com/nhle/mailgate/internal/transport"
)

// authHint replaces the error bar after the gateway rejected the session.
const authHint = "Gateway rejected the credentials. Press L to log in again."

// Engine is the application core the UI drives. *engine.Engine satisfies
// it.
type Engine interface {
	Login(ctx context.Context, identity, secret string) error
	SelectFolder(ctx context.Context, name string) error
	Refresh(ctx context.Context) error
	SelectMessage(ctx context.Context, uid string) error
	DeleteMessage(ctx context.Context, uid string) error
	ToggleUnread(ctx context.Context, uid string) error
	OpenAttachment(ctx context.Context, att model.Attachment) (string, error)
	Snapshot() engine.State
}

// loginResultMsg is sent after a login attempt settles.
type loginResultMsg struct {
	err error
}

// intentResultMsg is sent after any other engine call settles.
type intentResultMsg struct {
	intent engine.Intent

	// location is where an attachment was saved.
	location string
	err      error
}

func (m Model) login(identity, secret string) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		ctx := context.Background()
		return loginResultMsg{err: eng.Login(ctx, identity, secret)}
	}
}

// run executes fn off the UI goroutine and reports its outcome as an
// intentResultMsg. User intents carry no deadline: a hung call leaves its
// action Requesting.
func (m Model) run(intent engine.Intent, fn func(ctx context.Context, eng Engine) error) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		ctx := context.Background()
		return intentResultMsg{intent: intent, err: fn(ctx, eng)}
	}
}

func (m Model) selectFolder(name string) tea.Cmd {
	return m.run(engine.IntentSelectFolder, func(ctx context.Context, eng Engine) error {
		return eng.SelectFolder(ctx, name)
	})
}

func (m Model) refresh() tea.Cmd {
	return m.run(engine.IntentRefresh, func(ctx context.Context, eng Engine) error {
		return eng.Refresh(ctx)
	})
}

func (m Model) selectMessage(uid string) tea.Cmd {
	return m.run(engine.IntentSelectMessage, func(ctx context.Context, eng Engine) error {
		return eng.SelectMessage(ctx, uid)
	})
}

func (m Model) deleteMessage(uid string) tea.Cmd {
	return m.run(engine.IntentDeleteMessage, func(ctx context.Context, eng Engine) error {
		return eng.DeleteMessage(ctx, uid)
	})
}

func (m Model) toggleUnread(uid string) tea.Cmd {
	return m.run(engine.IntentToggleUnread, func(ctx context.Context, eng Engine) error {
		return eng.ToggleUnread(ctx, uid)
	})
}

func (m Model) openAttachment(att model.Attachment) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		ctx := context.Background()
		location, err := eng.OpenAttachment(ctx, att)
		return intentResultMsg{intent: engine.IntentOpenAttachment, location: location, err: err}
	}
}

// describeLoginError is describeError for the login form, where a 401
// means the typed credentials are wrong.
func describeLoginError(err error) string {
	if transport.IsAuthError(err) {
		return "Invalid email or password."
	}
	return describeError(err)
}

// describeError turns an engine error into a line for the error bar.
func describeError(err error) string {
	if transport.IsAuthError(err) {
		return authHint
	}

	if remoteErr, ok := transport.IsRemoteError(err); ok {
		msg := remoteErr.Message
		if msg == "" {
			msg = http.StatusText(remoteErr.Status)
		}
		return fmt.Sprintf("Gateway: %s (%d)", msg, remoteErr.Status)
	}

	switch {
	case errors.Is(err, engine.ErrMissingCredentials):
		return "Email and password are required."
	case errors.Is(err, credential.ErrNotAuthenticated):
		return "Not logged in. Press L to log in."
	case errors.Is(err, engine.ErrNoFolder):
		return "Select a folder first."
	case errors.Is(err, mailbox.ErrUnknownFolder):
		return "That folder does not exist."
	default:
		return err.Error()
	}
}
