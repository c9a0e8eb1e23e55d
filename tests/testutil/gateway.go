package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/nhle/mailgate/internal/model"
)

// FakeGateway is an in-memory HTTP gateway speaking the same routes as the
// real one. Handlers mutate its fields under mu, so tests can inspect them
// with Mails and Requests.
type FakeGateway struct {
	mu          sync.Mutex
	identity    string
	secret      string
	folders     []string
	mails       map[string][]model.MessageSummary
	details     map[string]model.MessageDetail
	attachments map[string][]byte
	gates       map[string]*Gate
	requests    []string

	srv *httptest.Server
}

// NewFakeGateway starts a gateway accepting identity/secret. It is closed
// when the test completes.
func NewFakeGateway(t testing.TB, identity, secret string) *FakeGateway {
	t.Helper()

	g := &FakeGateway{
		identity:    identity,
		secret:      secret,
		mails:       make(map[string][]model.MessageSummary),
		details:     make(map[string]model.MessageDetail),
		attachments: make(map[string][]byte),
		gates:       make(map[string]*Gate),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", g.handleFolders)
	mux.HandleFunc("GET /att/{uid}/{filename}", g.handleAttachment)
	mux.HandleFunc("GET /{folder}", g.handleListing)
	mux.HandleFunc("GET /{folder}/{uid}", g.handleDetail)
	mux.HandleFunc("PUT /{folder}/{uid}", g.handleUnsee)
	mux.HandleFunc("DELETE /{folder}/{uid}", g.handleDelete)

	g.srv = httptest.NewServer(g.gated(mux))
	t.Cleanup(g.srv.Close)

	return g
}

// URL returns the gateway base URL.
func (g *FakeGateway) URL() string { return g.srv.URL }

// SetSecret changes the accepted secret, making existing sessions get 401.
func (g *FakeGateway) SetSecret(secret string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.secret = secret
}

// AddFolder registers a folder holding mails. Folders are listed in the
// order they were added.
func (g *FakeGateway) AddFolder(name string, mails ...model.MessageSummary) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !slices.Contains(g.folders, name) {
		g.folders = append(g.folders, name)
	}
	g.mails[name] = append([]model.MessageSummary(nil), mails...)
}

// AddDetail registers the full message returned for folder/uid.
func (g *FakeGateway) AddDetail(folder string, detail model.MessageDetail) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.details[folder+"/"+detail.UID] = detail
}

// AddAttachment registers the payload served at link.
func (g *FakeGateway) AddAttachment(link string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attachments[link] = data
}

// Mails returns the server-side mails of folder.
func (g *FakeGateway) Mails(folder string) []model.MessageSummary {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]model.MessageSummary, len(g.mails[folder]))
	for i, m := range g.mails[folder] {
		out[i] = m.Clone()
	}
	return out
}

// Requests returns "METHOD path" for every request received, in order.
func (g *FakeGateway) Requests() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.requests...)
}

// Gate holds one matching request until released.
type Gate struct {
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

// Arrived is closed once the held request reached the gateway.
func (g *Gate) Arrived() <-chan struct{} { return g.arrived }

// Release lets the held request proceed.
func (g *Gate) Release() { g.once.Do(func() { close(g.release) }) }

// Hold makes the next request for method and path (without query) block
// until the returned gate is released.
func (g *FakeGateway) Hold(method, path string) *Gate {
	g.mu.Lock()
	defer g.mu.Unlock()

	gate := &Gate{arrived: make(chan struct{}), release: make(chan struct{})}
	g.gates[method+" "+path] = gate
	return gate
}

func (g *FakeGateway) gated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		g.mu.Lock()
		g.requests = append(g.requests, key)
		gate, ok := g.gates[key]
		if ok {
			delete(g.gates, key)
		}
		g.mu.Unlock()

		if ok {
			close(gate.arrived)
			select {
			case <-gate.release:
			case <-r.Context().Done():
				return
			}
		}

		if !g.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *FakeGateway) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	g.mu.Lock()
	defer g.mu.Unlock()
	return ok && user == g.identity && pass == g.secret
}

func (g *FakeGateway) handleFolders(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	folders := append([]string{}, g.folders...)
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, folders)
}

func (g *FakeGateway) handleListing(w http.ResponseWriter, r *http.Request) {
	folder := r.PathValue("folder")

	g.mu.Lock()
	mails, ok := g.mails[folder]
	out := make([]model.MessageSummary, len(mails))
	for i, m := range mails {
		out[i] = m.Clone()
	}
	g.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Folder not found"})
		return
	}
	writeJSON(w, http.StatusOK, model.MessageListing{Mails: out})
}

func (g *FakeGateway) handleDetail(w http.ResponseWriter, r *http.Request) {
	folder, uid := r.PathValue("folder"), r.PathValue("uid")

	g.mu.Lock()
	defer g.mu.Unlock()

	i := g.indexLocked(folder, uid)
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Message not found"})
		return
	}
	msg := &g.mails[folder][i]
	if !msg.Seen() {
		msg.Flags = append(msg.Flags, model.FlagSeen)
	}

	detail, ok := g.details[folder+"/"+uid]
	if !ok {
		detail = model.MessageDetail{UID: uid, From: msg.From, Subject: msg.Subject, Date: msg.Date}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (g *FakeGateway) handleUnsee(w http.ResponseWriter, r *http.Request) {
	folder, uid := r.PathValue("folder"), r.PathValue("uid")
	if r.URL.Query().Get("unsee") == "" {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	i := g.indexLocked(folder, uid)
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Message not found"})
		return
	}
	msg := &g.mails[folder][i]
	msg.Flags = slices.DeleteFunc(msg.Flags, func(f string) bool { return f == model.FlagSeen })
	writeJSON(w, http.StatusOK, map[string]string{"msg": "ok"})
}

func (g *FakeGateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	folder, uid := r.PathValue("folder"), r.PathValue("uid")

	g.mu.Lock()
	defer g.mu.Unlock()

	i := g.indexLocked(folder, uid)
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Message not found"})
		return
	}
	g.mails[folder] = slices.Delete(g.mails[folder], i, i+1)
	writeJSON(w, http.StatusOK, map[string]string{"msg": "ok"})
}

func (g *FakeGateway) handleAttachment(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	data, ok := g.attachments[r.URL.Path]
	g.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Attachment not found"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (g *FakeGateway) indexLocked(folder, uid string) int {
	return slices.IndexFunc(g.mails[folder], func(m model.MessageSummary) bool { return m.UID == uid })
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
