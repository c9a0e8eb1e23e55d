package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailgate/internal/credential"
	"github.com/nhle/mailgate/internal/mailbox"
	"github.com/nhle/mailgate/internal/model"
	"github.com/nhle/mailgate/internal/transport"
	"github.com/nhle/mailgate/tests/testutil"
)

const (
	identity = "ana@example.com"
	secret   = "pw"
)

type memSaver struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (s *memSaver) Save(_ context.Context, filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[filename] = data
	return "/downloads/" + filename, nil
}

func newEngine(t *testing.T, gw *testutil.FakeGateway) (*Engine, *memSaver) {
	t.Helper()
	saver := &memSaver{}
	return New(Config{PageSize: 50}, transport.NewClient(gw.URL()), saver, zerolog.Nop()), saver
}

func inboxGateway(t *testing.T) *testutil.FakeGateway {
	t.Helper()
	gw := testutil.NewFakeGateway(t, identity, secret)
	gw.AddFolder("INBOX",
		model.MessageSummary{UID: "A", From: "bo@example.com", Subject: "first", Flags: []string{}},
		model.MessageSummary{UID: "B", From: "cy@example.com", Subject: "second", Flags: []string{model.FlagSeen}},
	)
	return gw
}

func loggedIn(t *testing.T, gw *testutil.FakeGateway) (*Engine, *memSaver) {
	t.Helper()
	e, saver := newEngine(t, gw)
	require.NoError(t, e.Login(context.Background(), identity, secret))
	return e, saver
}

func uids(msgs []model.MessageSummary) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.UID
	}
	return out
}

func TestEngine_InboxScenario(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)

	st := e.Snapshot()
	assert.Equal(t, identity, st.Identity)
	assert.Equal(t, []string{"INBOX"}, st.Folders)
	assert.Equal(t, "INBOX", st.Highlighted)
	assert.Empty(t, st.Messages)

	require.NoError(t, e.SelectFolder(ctx, "INBOX"))
	st = e.Snapshot()
	assert.Equal(t, "INBOX", st.Folder)
	assert.Equal(t, []string{"A", "B"}, uids(st.Messages))
	assert.False(t, st.Messages[0].Seen())

	require.NoError(t, e.SelectMessage(ctx, "A"))
	st = e.Snapshot()
	assert.Equal(t, "A", st.MessageUID)
	require.NotNil(t, st.Message)
	assert.Equal(t, "first", st.Message.Subject)
	assert.True(t, st.Messages[0].Seen())

	require.NoError(t, e.DeleteMessage(ctx, "B"))
	st = e.Snapshot()
	assert.Equal(t, []string{"A"}, uids(st.Messages))
	assert.Equal(t, []string{"A"}, uids(gw.Mails("INBOX")))

	assert.Equal(t, ActionApplied, st.Actions[IntentDeleteMessage].State)
	assert.False(t, st.Pending(IntentDeleteMessage))
}

func TestEngine_LoginRequiresBothFields(t *testing.T) {
	gw := inboxGateway(t)
	e, _ := newEngine(t, gw)

	assert.ErrorIs(t, e.Login(context.Background(), "", secret), ErrMissingCredentials)
	assert.ErrorIs(t, e.Login(context.Background(), identity, ""), ErrMissingCredentials)
	assert.Empty(t, gw.Requests())
}

func TestEngine_LoginRejectedKeepsLoggedOut(t *testing.T) {
	gw := inboxGateway(t)
	e, _ := newEngine(t, gw)

	err := e.Login(context.Background(), identity, "wrong")
	require.Error(t, err)
	assert.True(t, transport.IsAuthError(err))

	st := e.Snapshot()
	assert.Empty(t, st.Identity)
	assert.Empty(t, st.Folders)
	assert.Equal(t, ActionRejected, st.Actions[IntentLogin].State)

	assert.ErrorIs(t, e.SelectFolder(context.Background(), "INBOX"), credential.ErrNotAuthenticated)
}

func TestEngine_ActionsBeforeFolderListing(t *testing.T) {
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	before := len(gw.Requests())

	assert.ErrorIs(t, e.SelectMessage(context.Background(), "A"), ErrNoFolder)
	assert.ErrorIs(t, e.DeleteMessage(context.Background(), "A"), ErrNoFolder)
	assert.ErrorIs(t, e.ToggleUnread(context.Background(), "A"), ErrNoFolder)
	assert.Len(t, gw.Requests(), before)
}

func TestEngine_EmptyArgumentsAreNoOps(t *testing.T) {
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(context.Background(), "INBOX"))
	before := len(gw.Requests())

	assert.NoError(t, e.SelectFolder(context.Background(), ""))
	assert.NoError(t, e.SelectMessage(context.Background(), ""))
	assert.NoError(t, e.DeleteMessage(context.Background(), ""))
	assert.NoError(t, e.ToggleUnread(context.Background(), ""))
	assert.Len(t, gw.Requests(), before)
}

func TestEngine_SelectUnknownFolder(t *testing.T) {
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	before := len(gw.Requests())

	err := e.SelectFolder(context.Background(), "Archive")
	assert.ErrorIs(t, err, mailbox.ErrUnknownFolder)
	assert.Len(t, gw.Requests(), before)
}

func TestEngine_DeleteFailureLeavesListUnchanged(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	err := e.DeleteMessage(ctx, "Z")
	remoteErr, ok := transport.IsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, remoteErr.Status)

	st := e.Snapshot()
	assert.Equal(t, []string{"A", "B"}, uids(st.Messages))
	assert.Equal(t, ActionRejected, st.Actions[IntentDeleteMessage].State)
}

func TestEngine_UnauthorizedMutatesNothing(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))
	before := e.Snapshot()

	gw.SetSecret("rotated")

	assert.True(t, transport.IsAuthError(e.SelectMessage(ctx, "A")))
	assert.True(t, transport.IsAuthError(e.DeleteMessage(ctx, "A")))
	assert.True(t, transport.IsAuthError(e.ToggleUnread(ctx, "B")))
	assert.True(t, transport.IsAuthError(e.SelectFolder(ctx, "INBOX")))

	after := e.Snapshot()
	assert.Equal(t, before.Messages, after.Messages)
	assert.Equal(t, before.Folder, after.Folder)
	assert.Nil(t, after.Message)
	assert.Equal(t, identity, after.Identity)
}

func TestEngine_ToggleUnreadClearsSeen(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	require.NoError(t, e.ToggleUnread(ctx, "B"))

	st := e.Snapshot()
	assert.False(t, st.Messages[1].Seen())
	assert.False(t, gw.Mails("INBOX")[1].Seen())
	assert.False(t, st.Messages[0].Seen())
}

func TestEngine_DeleteClearsViewedMessage(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))
	require.NoError(t, e.SelectMessage(ctx, "A"))

	require.NoError(t, e.DeleteMessage(ctx, "A"))

	st := e.Snapshot()
	assert.Empty(t, st.MessageUID)
	assert.Nil(t, st.Message)
	assert.Equal(t, []string{"B"}, uids(st.Messages))
}

func TestEngine_StaleListingIsDiscarded(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	gw.AddFolder("Sent", model.MessageSummary{UID: "S1", Subject: "sent"})
	e, _ := loggedIn(t, gw)

	gate := gw.Hold(http.MethodGet, "/INBOX")
	errc := make(chan error, 1)
	go func() { errc <- e.SelectFolder(ctx, "INBOX") }()
	<-gate.Arrived()

	require.NoError(t, e.SelectFolder(ctx, "Sent"))
	gate.Release()
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	st := e.Snapshot()
	assert.Equal(t, "Sent", st.Folder)
	assert.Equal(t, "Sent", st.Highlighted)
	assert.Equal(t, []string{"S1"}, uids(st.Messages))
}

func TestEngine_MutationAfterFolderSwitchIsDropped(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(t, identity, secret)
	gw.AddFolder("INBOX", model.MessageSummary{UID: "1", Flags: []string{model.FlagSeen}})
	gw.AddFolder("Sent", model.MessageSummary{UID: "1", Flags: []string{model.FlagSeen}})
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	gate := gw.Hold(http.MethodPut, "/INBOX/1")
	errc := make(chan error, 1)
	go func() { errc <- e.ToggleUnread(ctx, "1") }()
	<-gate.Arrived()

	require.NoError(t, e.SelectFolder(ctx, "Sent"))
	gate.Release()
	require.NoError(t, <-errc)

	st := e.Snapshot()
	require.Len(t, st.Messages, 1)
	assert.True(t, st.Messages[0].Seen(), "Sent/1 must not pick up the INBOX/1 mutation")
}

func TestEngine_RefreshDuringDeleteKeepsConfirmedRemoval(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	gate := gw.Hold(http.MethodDelete, "/INBOX/A")
	errc := make(chan error, 1)
	go func() { errc <- e.DeleteMessage(ctx, "A") }()
	<-gate.Arrived()

	require.NoError(t, e.Refresh(ctx))
	gate.Release()
	require.NoError(t, <-errc)

	assert.Equal(t, []string{"B"}, uids(gw.Mails("INBOX")))
	assert.Equal(t, []string{"B"}, uids(e.Snapshot().Messages))
}

func TestEngine_RefreshDuringToggleUnreadKeepsConfirmedFlag(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	gate := gw.Hold(http.MethodPut, "/INBOX/B")
	errc := make(chan error, 1)
	go func() { errc <- e.ToggleUnread(ctx, "B") }()
	<-gate.Arrived()

	require.NoError(t, e.Refresh(ctx))
	gate.Release()
	require.NoError(t, <-errc)

	st := e.Snapshot()
	require.Len(t, st.Messages, 2)
	assert.False(t, st.Messages[1].Seen())
}

func TestEngine_RefreshDuringSelectMessageStillShowsIt(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	gate := gw.Hold(http.MethodGet, "/INBOX/A")
	errc := make(chan error, 1)
	go func() { errc <- e.SelectMessage(ctx, "A") }()
	<-gate.Arrived()

	require.NoError(t, e.Refresh(ctx))
	gate.Release()
	require.NoError(t, <-errc)

	st := e.Snapshot()
	assert.Equal(t, "A", st.MessageUID)
	require.NotNil(t, st.Message)
	assert.True(t, st.Messages[0].Seen())
}

func TestEngine_ReselectingLoadedFolderKeepsConfirmedRemoval(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	gate := gw.Hold(http.MethodDelete, "/INBOX/B")
	errc := make(chan error, 1)
	go func() { errc <- e.DeleteMessage(ctx, "B") }()
	<-gate.Arrived()

	require.NoError(t, e.SelectFolder(ctx, "INBOX"))
	gate.Release()
	require.NoError(t, <-errc)

	assert.Equal(t, []string{"A"}, uids(e.Snapshot().Messages))
}

func TestEngine_SelectMessageAfterFolderSwitchIsDropped(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(t, identity, secret)
	gw.AddFolder("INBOX", model.MessageSummary{UID: "1", Flags: []string{}})
	gw.AddFolder("Sent", model.MessageSummary{UID: "1", Flags: []string{}})
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	gate := gw.Hold(http.MethodGet, "/INBOX/1")
	errc := make(chan error, 1)
	go func() { errc <- e.SelectMessage(ctx, "1") }()
	<-gate.Arrived()

	require.NoError(t, e.SelectFolder(ctx, "Sent"))
	gate.Release()
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	st := e.Snapshot()
	assert.Nil(t, st.Message)
	require.Len(t, st.Messages, 1)
	assert.False(t, st.Messages[0].Seen(), "Sent/1 must not pick up the INBOX/1 read flag")
}

func TestEngine_LatestSelectedMessageWins(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	gate := gw.Hold(http.MethodGet, "/INBOX/A")
	errc := make(chan error, 1)
	go func() { errc <- e.SelectMessage(ctx, "A") }()
	<-gate.Arrived()

	require.NoError(t, e.SelectMessage(ctx, "B"))
	gate.Release()
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	st := e.Snapshot()
	assert.Equal(t, "B", st.MessageUID)
	assert.Equal(t, "second", st.Message.Subject)
	assert.True(t, st.Messages[0].Seen(), "A was read on the gateway")
}

func TestEngine_PendingWhileInFlight(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	gate := gw.Hold(http.MethodDelete, "/INBOX/A")
	errc := make(chan error, 1)
	go func() { errc <- e.DeleteMessage(ctx, "A") }()
	<-gate.Arrived()

	st := e.Snapshot()
	assert.True(t, st.Pending(IntentDeleteMessage))
	assert.Equal(t, ActionRequesting, st.Actions[IntentDeleteMessage].State)
	assert.Equal(t, []string{"A", "B"}, uids(st.Messages))

	gate.Release()
	require.NoError(t, <-errc)
	assert.False(t, e.Snapshot().Pending(IntentDeleteMessage))
}

func TestEngine_RefreshKeepsViewedMessage(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)

	require.NoError(t, e.Refresh(ctx), "refresh before selection is a no-op")

	require.NoError(t, e.SelectFolder(ctx, "INBOX"))
	require.NoError(t, e.SelectMessage(ctx, "A"))

	gw.AddFolder("INBOX",
		model.MessageSummary{UID: "A", Flags: []string{model.FlagSeen}},
		model.MessageSummary{UID: "B", Flags: []string{model.FlagSeen}},
		model.MessageSummary{UID: "C"},
	)
	require.NoError(t, e.Refresh(ctx))

	st := e.Snapshot()
	assert.Equal(t, []string{"A", "B", "C"}, uids(st.Messages))
	assert.Equal(t, "A", st.MessageUID)
	assert.Equal(t, ActionApplied, st.Actions[IntentRefresh].State)
}

func TestEngine_OpenAttachment(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	gw.AddAttachment("/att/A/report.pdf", []byte("%PDF"))
	e, saver := loggedIn(t, gw)

	location, err := e.OpenAttachment(ctx, model.Attachment{Filename: "report.pdf", Link: "/att/A/report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "/downloads/report.pdf", location)
	assert.Equal(t, []byte("%PDF"), saver.saved["report.pdf"])

	before := gw.Requests()
	location, err = e.OpenAttachment(ctx, model.Attachment{Filename: "virus.exe", AV: "infected"})
	require.NoError(t, err)
	assert.Empty(t, location)

	location, err = e.OpenAttachment(ctx, model.Attachment{Filename: "", Link: "/x"})
	require.NoError(t, err)
	assert.Empty(t, location)

	assert.Equal(t, before, gw.Requests())
	assert.Len(t, saver.saved, 1)
}

func TestEngine_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))

	st := e.Snapshot()
	st.Messages[0].Flags = append(st.Messages[0].Flags, "\\Flagged")
	st.Folders[0] = "mutated"

	again := e.Snapshot()
	assert.Empty(t, again.Messages[0].Flags)
	assert.Equal(t, []string{"INBOX"}, again.Folders)
}

func TestEngine_ReloginResetsSession(t *testing.T) {
	ctx := context.Background()
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)
	require.NoError(t, e.SelectFolder(ctx, "INBOX"))
	require.NoError(t, e.SelectMessage(ctx, "A"))

	require.NoError(t, e.Login(ctx, identity, secret))

	st := e.Snapshot()
	assert.Empty(t, st.Folder)
	assert.Empty(t, st.Messages)
	assert.Nil(t, st.Message)
}

func TestEngine_ContextCancelled(t *testing.T) {
	gw := inboxGateway(t)
	e, _ := loggedIn(t, gw)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	gate := gw.Hold(http.MethodGet, "/INBOX")
	defer gate.Release()

	err := e.SelectFolder(ctx, "INBOX")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, e.Snapshot().Messages)
}
