package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailgate/internal/backend"
	"github.com/nhle/mailgate/internal/model"
	"github.com/nhle/mailgate/internal/store"
	"github.com/nhle/mailgate/tests/testutil"
)

const (
	allowed = "ana@example.com"
	secret  = "pw"
)

type listCall struct {
	folder         string
	page, pageSize int
}

type fakeBackend struct {
	mu       sync.Mutex
	lists    []listCall
	deleted  []string
	unseen   []string
	message  *backend.Message
	err      error
	accounts []backend.Account
}

func (f *fakeBackend) check(acct backend.Account, pw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, acct)
	if pw != secret {
		return backend.ErrAuthFailed
	}
	return f.err
}

func (f *fakeBackend) Folders(_ context.Context, acct backend.Account, pw string) ([]string, error) {
	if err := f.check(acct, pw); err != nil {
		return nil, err
	}
	return []string{"INBOX", "Sent"}, nil
}

func (f *fakeBackend) List(_ context.Context, acct backend.Account, pw, folder string, page, pageSize int) ([]model.MessageSummary, error) {
	if err := f.check(acct, pw); err != nil {
		return nil, err
	}
	if folder != "INBOX" {
		return nil, backend.ErrFolderNotFound
	}
	f.mu.Lock()
	f.lists = append(f.lists, listCall{folder, page, pageSize})
	f.mu.Unlock()
	return []model.MessageSummary{{UID: "1", From: "bo@example.com", Subject: "hi", Flags: []string{}}}, nil
}

func (f *fakeBackend) Fetch(_ context.Context, acct backend.Account, pw, folder, uid string) (*backend.Message, error) {
	if err := f.check(acct, pw); err != nil {
		return nil, err
	}
	if f.message == nil {
		return nil, backend.ErrMessageNotFound
	}
	return f.message, nil
}

func (f *fakeBackend) Delete(_ context.Context, acct backend.Account, pw, folder, uid string) error {
	if err := f.check(acct, pw); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, folder+"/"+uid)
	return nil
}

func (f *fakeBackend) Unsee(_ context.Context, acct backend.Account, pw, folder, uid string) error {
	if err := f.check(acct, pw); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unseen = append(f.unseen, folder+"/"+uid)
	return nil
}

type fakeScanner struct {
	infected map[string]string
	err      error
}

func (s fakeScanner) Scan(_ context.Context, filename string, _ []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.infected[filename], nil
}

func newTestServer(t *testing.T, b *fakeBackend, scanner Scanner) *httptest.Server {
	t.Helper()
	return newTestServerWithStore(t, b, scanner, testutil.NewTestStore(t))
}

func newTestServerWithStore(t *testing.T, b *fakeBackend, scanner Scanner, st store.Store) *httptest.Server {
	t.Helper()
	cfg := &Config{
		AllowedAccounts: map[string]backend.Account{
			allowed: {Server: "imap.example.com", Port: 993},
		},
	}
	cfg.applyDefaults()

	srv := httptest.NewServer(NewServer(cfg, b, st, scanner, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, user, pass string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, nil)
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServer_Ping(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, nil)

	resp := do(t, srv, http.MethodGet, "/ping", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "pong", body["msg"])
}

func TestServer_AuthOutcomes(t *testing.T) {
	b := &fakeBackend{}
	srv := newTestServer(t, b, nil)

	assert.Equal(t, http.StatusForbidden, do(t, srv, http.MethodGet, "/", "", "").StatusCode)
	assert.Equal(t, http.StatusForbidden, do(t, srv, http.MethodGet, "/", "eve@example.com", secret).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/", allowed, "wrong").StatusCode)

	resp := do(t, srv, http.MethodGet, "/", allowed, secret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var folders []string
	decode(t, resp, &folders)
	assert.Equal(t, []string{"INBOX", "Sent"}, folders)

	last := b.accounts[len(b.accounts)-1]
	assert.Equal(t, allowed, last.Email)
	assert.Equal(t, "imap.example.com", last.Server)
}

func TestServer_Listing(t *testing.T) {
	b := &fakeBackend{}
	srv := newTestServer(t, b, nil)

	resp := do(t, srv, http.MethodGet, "/INBOX?page_size=10&page=2", allowed, secret)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing model.MessageListing
	decode(t, resp, &listing)
	require.Len(t, listing.Mails, 1)
	assert.Equal(t, "1", listing.Mails[0].UID)
	assert.Equal(t, []listCall{{"INBOX", 2, 10}}, b.lists)

	do(t, srv, http.MethodGet, "/INBOX", allowed, secret)
	assert.Equal(t, listCall{"INBOX", 0, model.DefaultPageSize}, b.lists[1])
}

func TestServer_ListingErrors(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, nil)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/INBOX?page_size=x", allowed, secret).StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/INBOX?page=-1", allowed, secret).StatusCode)

	resp := do(t, srv, http.MethodGet, "/Nope", allowed, secret)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "Folder not found", body["error"])
}

func TestServer_MessageStoresCleanAttachments(t *testing.T) {
	b := &fakeBackend{message: &backend.Message{
		Detail: model.MessageDetail{UID: "7", Subject: "report", Text: "see attached"},
		Parts: []backend.Part{
			{Filename: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
			{Filename: "virus.exe", ContentType: "application/octet-stream", Data: []byte("MZ")},
		},
	}}
	srv := newTestServer(t, b, fakeScanner{infected: map[string]string{"virus.exe": "Eicar FOUND"}})

	resp := do(t, srv, http.MethodGet, "/INBOX/7", allowed, secret)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail model.MessageDetail
	decode(t, resp, &detail)
	assert.Equal(t, "report", detail.Subject)
	require.Len(t, detail.Attachments, 2)

	clean, infected := detail.Attachments[0], detail.Attachments[1]
	assert.Equal(t, "/att/7/report.pdf", clean.Link)
	assert.EqualValues(t, 4, clean.Size)
	assert.Empty(t, clean.AV)
	assert.Empty(t, infected.Link)
	assert.Equal(t, "Eicar FOUND", infected.AV)
	assert.False(t, infected.Downloadable())

	att := do(t, srv, http.MethodGet, clean.Link, allowed, secret)
	require.Equal(t, http.StatusOK, att.StatusCode)
	assert.Equal(t, "application/pdf", att.Header.Get("Content-Type"))
	data, err := io.ReadAll(att.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/att/7/virus.exe", allowed, secret).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, clean.Link, allowed, "wrong").StatusCode)
}

func TestServer_AttachmentsAreScopedToTheLogin(t *testing.T) {
	st := testutil.NewTestStore(t)
	testutil.SeedAttachment(t, st, "bo@example.com", "7", "notes.txt", []byte("bo's"))
	mine := testutil.SeedAttachment(t, st, allowed, "7", "notes.txt", []byte("ana's"))
	srv := newTestServerWithStore(t, &fakeBackend{}, nil, st)

	resp := do(t, srv, http.MethodGet, AttachmentLink("7", "notes.txt"), allowed, secret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, mine.Data, data)

	assert.Equal(t, http.StatusNotFound,
		do(t, srv, http.MethodGet, AttachmentLink("8", "notes.txt"), allowed, secret).StatusCode)
}

func TestServer_ScanErrorWithholdsAttachment(t *testing.T) {
	b := &fakeBackend{message: &backend.Message{
		Detail: model.MessageDetail{UID: "7"},
		Parts:  []backend.Part{{Filename: "a.txt", Data: []byte("x")}},
	}}
	srv := newTestServer(t, b, fakeScanner{err: errors.New("clamd down")})

	var detail model.MessageDetail
	decode(t, do(t, srv, http.MethodGet, "/INBOX/7", allowed, secret), &detail)

	require.Len(t, detail.Attachments, 1)
	assert.Empty(t, detail.Attachments[0].Link)
	assert.NotEmpty(t, detail.Attachments[0].AV)
}

func TestServer_MessageNotFound(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, nil)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/INBOX/9", allowed, secret).StatusCode)
}

func TestServer_DeleteAndUnsee(t *testing.T) {
	b := &fakeBackend{}
	srv := newTestServer(t, b, nil)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodDelete, "/INBOX/7", allowed, secret).StatusCode)
	assert.Equal(t, []string{"INBOX/7"}, b.deleted)

	assert.Equal(t, http.StatusNotModified, do(t, srv, http.MethodPut, "/INBOX/7", allowed, secret).StatusCode)
	assert.Equal(t, http.StatusNotModified, do(t, srv, http.MethodPut, "/INBOX/7?unsee=no", allowed, secret).StatusCode)
	assert.Empty(t, b.unseen)

	for _, v := range []string{"1", "true", "YES"} {
		assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/INBOX/7?unsee="+v, allowed, secret).StatusCode)
	}
	assert.Len(t, b.unseen, 3)
}

func TestServer_EncodedFolderNames(t *testing.T) {
	b := &fakeBackend{}
	srv := newTestServer(t, b, nil)

	do(t, srv, http.MethodDelete, "/%5BGmail%5D%2FTrash/3", allowed, secret)
	assert.Equal(t, []string{"[Gmail]/Trash/3"}, b.deleted)
}

func TestServer_BackendFailureIs500(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{err: errors.New("connection reset")}, nil)

	resp := do(t, srv, http.MethodGet, "/", allowed, secret)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "connection reset", body["error"])
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/INBOX/1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestServer_EchoesRequestID(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ping", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc", resp.Header.Get("X-Request-ID"))
}
