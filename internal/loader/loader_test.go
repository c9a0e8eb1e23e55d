package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailgate/internal/mailbox"
	"github.com/nhle/mailgate/internal/model"
	"github.com/nhle/mailgate/internal/transport"
)

var creds = model.Credentials{Identity: "ana@example.com", Secret: "pw"}

func newServer(t *testing.T, status int, body string) (*transport.Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return transport.NewClient(srv.URL), &calls
}

func listWith(flags ...string) *mailbox.MessageList {
	l := mailbox.NewMessageList()
	l.ReplaceAll([]model.MessageSummary{
		{UID: "A", Flags: append([]string{}, flags...)},
		{UID: "B", Flags: []string{model.FlagSeen}},
	})
	return l
}

func TestDetailLoader_LoadMarksSeenOnSuccess(t *testing.T) {
	client, _ := newServer(t, http.StatusOK, `{
		"uid": "A", "from": "bo@example.com", "to": ["ana@example.com"],
		"subject": "hi", "date": "2024/03/01, 10:00:00", "text": "body",
		"attachments": [{"filename": "a.txt", "link": "/att/A/a.txt"}]
	}`)
	l := listWith()

	detail, err := NewDetailLoader(client, zerolog.Nop()).Load(context.Background(), "INBOX", "A", creds, l)
	require.NoError(t, err)

	assert.Equal(t, "hi", detail.Subject)
	require.Len(t, detail.Attachments, 1)
	assert.Equal(t, "/att/A/a.txt", detail.Attachments[0].Link)

	a, _ := l.Get("A")
	assert.Equal(t, []string{model.FlagSeen}, a.Flags)
	b, _ := l.Get("B")
	assert.Equal(t, []string{model.FlagSeen}, b.Flags)
}

func TestDetailLoader_UnauthorizedDoesNotMutate(t *testing.T) {
	client, _ := newServer(t, http.StatusUnauthorized, `{"error":"Unauthorized"}`)
	l := listWith()

	_, err := NewDetailLoader(client, zerolog.Nop()).Load(context.Background(), "INBOX", "A", creds, l)
	require.Error(t, err)
	assert.True(t, transport.IsAuthError(err))

	a, _ := l.Get("A")
	assert.Empty(t, a.Flags)
}

func TestDetailLoader_RemoteError(t *testing.T) {
	client, _ := newServer(t, http.StatusNotFound, `{"error":"Folder not found"}`)

	_, err := NewDetailLoader(client, zerolog.Nop()).Fetch(context.Background(), "Nope", "A", creds)
	remoteErr, ok := transport.IsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, remoteErr.Status)
}

type memSaver struct {
	filename string
	data     []byte
	err      error
}

func (s *memSaver) Save(_ context.Context, filename string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.filename = filename
	s.data = data
	return "/downloads/" + filename, nil
}

func TestAttachmentRetriever_RetrieveSaves(t *testing.T) {
	client, calls := newServer(t, http.StatusOK, "raw-bytes")
	saver := &memSaver{}

	location, err := NewAttachmentRetriever(client, saver, zerolog.Nop()).Retrieve(
		context.Background(), model.Attachment{Filename: "a.txt", Link: "/att/A/a.txt"}, creds,
	)
	require.NoError(t, err)

	assert.Equal(t, "/downloads/a.txt", location)
	assert.Equal(t, "a.txt", saver.filename)
	assert.Equal(t, []byte("raw-bytes"), saver.data)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestAttachmentRetriever_UnauthorizedSkipsSaver(t *testing.T) {
	client, _ := newServer(t, http.StatusUnauthorized, "")
	saver := &memSaver{}

	_, err := NewAttachmentRetriever(client, saver, zerolog.Nop()).Retrieve(
		context.Background(), model.Attachment{Filename: "a.txt", Link: "/att/A/a.txt"}, creds,
	)
	require.Error(t, err)
	assert.True(t, transport.IsAuthError(err))
	assert.Empty(t, saver.filename)
}

func TestAttachmentRetriever_SaverFailure(t *testing.T) {
	client, _ := newServer(t, http.StatusOK, "x")
	saver := &memSaver{err: errors.New("disk full")}

	_, err := NewAttachmentRetriever(client, saver, zerolog.Nop()).Retrieve(
		context.Background(), model.Attachment{Filename: "a.txt", Link: "/att/A/a.txt"}, creds,
	)
	assert.ErrorIs(t, err, saver.err)
}

func TestAttachmentRetriever_IncompleteAttachmentIssuesNoRequest(t *testing.T) {
	client, calls := newServer(t, http.StatusOK, "x")
	saver := &memSaver{}
	r := NewAttachmentRetriever(client, saver, zerolog.Nop())

	for _, att := range []model.Attachment{
		{Filename: "", Link: "/x"},
		{Filename: "virus.exe", Link: ""},
	} {
		location, err := r.Retrieve(context.Background(), att, creds)
		require.NoError(t, err)
		assert.Empty(t, location)
	}

	assert.Zero(t, atomic.LoadInt32(calls))
	assert.Empty(t, saver.filename)
}
