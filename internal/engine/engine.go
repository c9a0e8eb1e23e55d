package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailgate/internal/credential"
	"github.com/nhle/mailgate/internal/loader"
	"github.com/nhle/mailgate/internal/logging"
	"github.com/nhle/mailgate/internal/mailbox"
	"github.com/nhle/mailgate/internal/model"
	"github.com/nhle/mailgate/internal/transport"
)

var (
	// ErrMissingCredentials is returned by Login when identity or secret
	// is empty. No request is issued.
	ErrMissingCredentials = errors.New("identity and secret are required")

	// ErrNoFolder is returned by single-message actions before any folder
	// listing has been applied.
	ErrNoFolder = errors.New("no folder selected")

	// ErrSuperseded is returned when a response arrived after a newer
	// request (or a folder switch) made it irrelevant. Nothing was applied.
	ErrSuperseded = errors.New("response superseded by a newer request")
)

// Transport is the subset of the gateway client the engine uses.
type Transport interface {
	Get(ctx context.Context, path string, creds model.Credentials) (*transport.Response, error)
	Put(ctx context.Context, path string, creds model.Credentials) (*transport.Response, error)
	Delete(ctx context.Context, path string, creds model.Credentials) (*transport.Response, error)
}

// Config holds engine settings.
type Config struct {
	// PageSize is sent with every folder listing. Defaults to 50.
	PageSize int
}

// Engine is the client-side mailbox synchronization engine. Every method
// blocks only its caller; callers run intents concurrently and the engine
// serializes the short apply step that follows each remote call.
type Engine struct {
	client      Transport
	creds       *credential.Context
	folders     *mailbox.FolderList
	messages    *mailbox.MessageList
	details     *loader.DetailLoader
	attachments *loader.AttachmentRetriever
	pageSize    int
	log         zerolog.Logger

	mu      sync.Mutex
	sel     selection
	actions map[Intent]*ActionStatus
}

// New creates an engine talking to the gateway through client and saving
// opened attachments with saver.
func New(cfg Config, client Transport, saver loader.Saver, log zerolog.Logger) *Engine {
	pageSize := cfg.PageSize
	if pageSize < 1 {
		pageSize = model.DefaultPageSize
	}

	return &Engine{
		client:      client,
		creds:       credential.NewContext(),
		folders:     mailbox.NewFolderList(),
		messages:    mailbox.NewMessageList(),
		details:     loader.NewDetailLoader(client, log),
		attachments: loader.NewAttachmentRetriever(client, saver, log),
		pageSize:    pageSize,
		log:         log,
		actions:     make(map[Intent]*ActionStatus),
	}
}

// Login validates the credentials against the folder listing and, on
// success, captures them and starts a fresh session view.
func (e *Engine) Login(ctx context.Context, identity, secret string) error {
	if identity == "" || secret == "" {
		return ErrMissingCredentials
	}

	e.begin(IntentLogin)

	candidate := model.Credentials{Identity: identity, Secret: secret}
	var folders []string
	err := e.getJSON(ctx, transport.FoldersPath(), candidate, &folders)
	if err != nil {
		e.settle(IntentLogin, err)
		e.logFailure(IntentLogin, err).
			Str("identity", logging.MaskEmail(identity)).
			Msg("Login failed")
		return fmt.Errorf("logging in: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.creds.Capture(identity, secret)
	e.folders.ReplaceAll(folders)
	e.messages.Commit(e.messages.Begin(), nil)
	e.sel.reset()
	e.settleLocked(IntentLogin, nil)

	e.log.Info().
		Str("identity", logging.MaskEmail(identity)).
		Int("folders", len(folders)).
		Msg("Logged in")

	return nil
}

// SelectFolder lists name and, if the response is still current, makes it
// the loaded folder: the message list is replaced wholesale and the viewed
// message is cleared. An empty name is a no-op.
func (e *Engine) SelectFolder(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	return e.list(ctx, IntentSelectFolder, name)
}

// Refresh re-lists the loaded folder, keeping the viewed message. It is a
// no-op before any folder was selected.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	folder := e.sel.folder
	e.mu.Unlock()

	if folder == "" {
		return nil
	}
	return e.list(ctx, IntentRefresh, folder)
}

func (e *Engine) list(ctx context.Context, intent Intent, folder string) error {
	creds, err := e.creds.Credentials()
	if err != nil {
		return err
	}
	if !e.folders.Contains(folder) {
		return fmt.Errorf("selecting folder %q: %w", folder, mailbox.ErrUnknownFolder)
	}

	gen := e.messages.Begin()
	e.begin(intent)

	var listing model.MessageListing
	err = e.getJSON(ctx, transport.FolderPath(folder, e.pageSize), creds, &listing)
	if err != nil {
		e.settle(intent, err)
		e.logFailure(intent, err).Str("folder", folder).Msg("Folder listing failed")
		return fmt.Errorf("listing folder %q: %w", folder, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A re-login replaces the folder list and issues its own generation, so
	// a committed listing always names a listed folder.
	if !e.messages.Commit(gen, listing.Mails) {
		e.settleLocked(intent, ErrSuperseded)
		e.log.Debug().Str("folder", folder).Msg("Discarding stale folder listing")
		return ErrSuperseded
	}
	if err := e.folders.Select(folder); err != nil {
		e.settleLocked(intent, err)
		return err
	}

	if intent == IntentSelectFolder || e.sel.folder != folder {
		e.sel.clearMessage()
	}
	e.sel.load(folder)
	e.settleLocked(intent, nil)

	return nil
}

// SelectMessage fetches uid from the loaded folder, shows it and marks it
// seen locally. An empty uid is a no-op.
func (e *Engine) SelectMessage(ctx context.Context, uid string) error {
	if uid == "" {
		return nil
	}

	creds, folder, view, err := e.prepare()
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.sel.detailGen++
	gen := e.sel.detailGen
	e.mu.Unlock()

	e.begin(IntentSelectMessage)

	// The gateway marked it read, so the flag holds even if a newer
	// selection wins the view.
	detail, err := e.details.Load(ctx, folder, uid, creds, viewMarker{e: e, view: view})
	if err != nil {
		e.settle(IntentSelectMessage, err)
		e.logFailure(IntentSelectMessage, err).Str("folder", folder).Str("uid", uid).Msg("Message fetch failed")
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sel.view != view || gen != e.sel.detailGen {
		e.settleLocked(IntentSelectMessage, ErrSuperseded)
		return ErrSuperseded
	}
	e.sel.messageUID = uid
	e.sel.message = detail
	e.settleLocked(IntentSelectMessage, nil)

	return nil
}

// DeleteMessage deletes uid on the gateway and, once confirmed, removes it
// from the local list.
func (e *Engine) DeleteMessage(ctx context.Context, uid string) error {
	if uid == "" {
		return nil
	}

	creds, folder, view, err := e.prepare()
	if err != nil {
		return err
	}

	e.begin(IntentDeleteMessage)

	resp, err := e.client.Delete(ctx, transport.MessagePath(folder, uid), creds)
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		e.settle(IntentDeleteMessage, err)
		e.logFailure(IntentDeleteMessage, err).Str("folder", folder).Str("uid", uid).Msg("Delete failed")
		return fmt.Errorf("deleting message %s/%s: %w", folder, uid, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sel.view == view {
		e.messages.Remove(uid)
		if e.sel.messageUID == uid {
			e.sel.clearMessage()
		}
	}
	e.settleLocked(IntentDeleteMessage, nil)

	return nil
}

// ToggleUnread clears the seen flag of uid on the gateway and, once
// confirmed, locally.
func (e *Engine) ToggleUnread(ctx context.Context, uid string) error {
	if uid == "" {
		return nil
	}

	creds, folder, view, err := e.prepare()
	if err != nil {
		return err
	}

	e.begin(IntentToggleUnread)

	resp, err := e.client.Put(ctx, transport.UnseePath(folder, uid), creds)
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		e.settle(IntentToggleUnread, err)
		e.logFailure(IntentToggleUnread, err).Str("folder", folder).Str("uid", uid).Msg("Mark unread failed")
		return fmt.Errorf("marking %s/%s unread: %w", folder, uid, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sel.view == view {
		e.messages.MarkUnseen(uid)
	}
	e.settleLocked(IntentToggleUnread, nil)

	return nil
}

// OpenAttachment downloads att and hands it to the saver, returning where
// it was saved. Attachments without a filename or link are ignored.
func (e *Engine) OpenAttachment(ctx context.Context, att model.Attachment) (string, error) {
	if !att.Downloadable() {
		e.log.Debug().Str("filename", att.Filename).Msg("Skipping attachment without link")
		return "", nil
	}

	creds, err := e.creds.Credentials()
	if err != nil {
		return "", err
	}

	e.begin(IntentOpenAttachment)

	location, err := e.attachments.Retrieve(ctx, att, creds)
	e.settle(IntentOpenAttachment, err)
	if err != nil {
		e.logFailure(IntentOpenAttachment, err).Str("filename", att.Filename).Msg("Attachment download failed")
		return "", err
	}

	return location, nil
}

// Snapshot returns a copy of the current application state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		Identity:    e.creds.Identity(),
		Folders:     e.folders.Folders(),
		Highlighted: e.folders.Selected(),
		Folder:      e.sel.folder,
		Messages:    e.messages.Messages(),
		MessageUID:  e.sel.messageUID,
		Actions:     make(map[Intent]ActionStatus, len(e.actions)),
	}
	if e.sel.message != nil {
		msg := *e.sel.message
		msg.Attachments = append([]model.Attachment(nil), e.sel.message.Attachments...)
		st.Message = &msg
	}
	for intent, status := range e.actions {
		st.Actions[intent] = *status
	}

	return st
}

// prepare captures what a single-message action needs at issue time: the
// credentials, the loaded folder and its view.
func (e *Engine) prepare() (model.Credentials, string, uint64, error) {
	creds, err := e.creds.Credentials()
	if err != nil {
		return model.Credentials{}, "", 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sel.folder == "" {
		return model.Credentials{}, "", 0, ErrNoFolder
	}
	return creds, e.sel.folder, e.sel.view, nil
}

// viewMarker applies the read-on-fetch flag only while the folder view the
// fetch was issued under is still loaded.
type viewMarker struct {
	e    *Engine
	view uint64
}

func (m viewMarker) MarkSeen(uid string) bool {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	if m.e.sel.view != m.view {
		return false
	}
	return m.e.messages.MarkSeen(uid)
}

func (e *Engine) getJSON(
	ctx context.Context, path string, creds model.Credentials, v any,
) error {
	resp, err := e.client.Get(ctx, path, creds)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// logFailure picks the log level for a failed action: 401 is an expected
// outcome and logged at info.
func (e *Engine) logFailure(intent Intent, err error) *zerolog.Event {
	if transport.IsAuthError(err) {
		return e.log.Info().Str("intent", string(intent)).Str("reason", "Unauthorized")
	}
	return e.log.Warn().Err(err).Str("intent", string(intent))
}

func (e *Engine) begin(intent Intent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := e.statusLocked(intent)
	status.InFlight++
	status.State = ActionRequesting
	status.Updated = time.Now()
}

func (e *Engine) settle(intent Intent, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settleLocked(intent, err)
}

func (e *Engine) settleLocked(intent Intent, err error) {
	status := e.statusLocked(intent)
	if status.InFlight > 0 {
		status.InFlight--
	}
	status.Err = err
	status.Updated = time.Now()

	switch {
	case status.InFlight > 0:
		status.State = ActionRequesting
	case err != nil:
		status.State = ActionRejected
	default:
		status.State = ActionApplied
	}
}

func (e *Engine) statusLocked(intent Intent) *ActionStatus {
	status, ok := e.actions[intent]
	if !ok {
		status = &ActionStatus{Intent: intent}
		e.actions[intent] = status
	}
	return status
}
