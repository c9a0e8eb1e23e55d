package engine

import (
	"time"

	"github.com/nhle/mailgate/internal/model"
)

// Intent names a user action the engine handles.
type Intent string

const (
	IntentLogin          Intent = "login"
	IntentSelectFolder   Intent = "select_folder"
	IntentRefresh        Intent = "refresh"
	IntentSelectMessage  Intent = "select_message"
	IntentDeleteMessage  Intent = "delete_message"
	IntentToggleUnread   Intent = "toggle_unread"
	IntentOpenAttachment Intent = "open_attachment"
)

// ActionState is the lifecycle of one action slot.
type ActionState int

const (
	ActionIdle ActionState = iota
	ActionRequesting
	ActionApplied
	ActionRejected
)

func (s ActionState) String() string {
	switch s {
	case ActionRequesting:
		return "requesting"
	case ActionApplied:
		return "applied"
	case ActionRejected:
		return "rejected"
	default:
		return "idle"
	}
}

// ActionStatus holds the state of one intent's slot. InFlight counts calls
// still outstanding; State stays Requesting until all of them settle.
type ActionStatus struct {
	Intent   Intent
	State    ActionState
	InFlight int
	Err      error
	Updated  time.Time
}

// State is a point-in-time copy of the application state. Renderers read
// it; they never hold references into the engine.
type State struct {
	// Identity is the logged-in user, or "" before login.
	Identity string

	// Folders is the folder list; Highlighted is the FolderList selection.
	Folders     []string
	Highlighted string

	// Folder is the folder whose messages are loaded and which
	// single-message actions address.
	Folder   string
	Messages []model.MessageSummary

	// MessageUID and Message describe the currently viewed message.
	MessageUID string
	Message    *model.MessageDetail

	Actions map[Intent]ActionStatus
}

// Pending reports whether any call of intent is still outstanding.
func (s State) Pending(intent Intent) bool {
	return s.Actions[intent].InFlight > 0
}

// selection is the engine-owned part of the state that is not held by a
// store.
type selection struct {
	folder     string
	messageUID string
	message    *model.MessageDetail

	// detailGen orders SelectMessage calls; only the latest may set message.
	detailGen uint64

	// view advances when the loaded folder changes or a login starts a new
	// session. Re-listing the same folder keeps it, so confirmed
	// single-message mutations still apply after a refresh.
	view uint64
}

// load makes folder the loaded folder.
func (s *selection) load(folder string) {
	if s.folder != folder {
		s.view++
	}
	s.folder = folder
}

func (s *selection) reset() {
	s.folder = ""
	s.view++
	s.clearMessage()
}

func (s *selection) clearMessage() {
	s.messageUID = ""
	s.message = nil
	s.detailGen++
}
