// Package gateway serves mailboxes over HTTP with Basic authentication.
// Each request logs in to the account's mail server with the supplied
// credentials; the gateway keeps no sessions.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nhle/mailgate/internal/backend"
	"github.com/nhle/mailgate/internal/logging"
	"github.com/nhle/mailgate/internal/model"
	"github.com/nhle/mailgate/internal/store"
	"github.com/nhle/mailgate/internal/transport"
)

// Server holds the gateway dependencies.
type Server struct {
	cfg     *Config
	backend backend.Backend
	store   store.Store
	scanner Scanner
	log     zerolog.Logger
}

// NewServer creates a gateway server. A nil scanner disables scanning.
func NewServer(
	cfg *Config,
	b backend.Backend,
	st store.Store,
	scanner Scanner,
	log zerolog.Logger,
) *Server {
	if scanner == nil {
		scanner = NopScanner{}
	}
	return &Server{cfg: cfg, backend: b, store: st, scanner: scanner, log: log}
}

// Handler returns the gateway routes wrapped in CORS, logging and
// metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", s.handlePing)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /{$}", s.authenticated(s.handleFolders))
	mux.Handle("GET /att/{uid}/{filename}", s.authenticated(s.handleAttachment))
	mux.Handle("GET /{folder}", s.authenticated(s.handleListing))
	mux.Handle("GET /{folder}/{uid}", s.authenticated(s.handleMessage))
	mux.Handle("DELETE /{folder}/{uid}", s.authenticated(s.handleDelete))
	mux.Handle("PUT /{folder}/{uid}", s.authenticated(s.handleUnsee))

	return withCORS(s.observe(mux))
}

type accountKey struct{}

// login is the authenticated account plus the secret forwarded to the
// mail server.
type login struct {
	account backend.Account
	secret  string
}

func loginFrom(ctx context.Context) login {
	l, _ := ctx.Value(accountKey{}).(login)
	return l
}

// authenticated admits requests whose Basic identity is an allowed
// account. The secret is only checked by the mail server.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, secret, ok := r.BasicAuth()
		if !ok {
			metricAuth.WithLabelValues("forbidden").Inc()
			writeError(w, http.StatusForbidden, "Invalid credentials")
			return
		}

		acct, allowed := s.cfg.Account(identity)
		if !allowed {
			metricAuth.WithLabelValues("forbidden").Inc()
			s.log.Info().
				Str("account", logging.MaskEmail(identity)).
				Msg("Account not allowed")
			writeError(w, http.StatusForbidden, "Invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), accountKey{}, login{account: acct, secret: secret})
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"msg": "pong"})
}

func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	l := loginFrom(r.Context())

	folders, err := s.backend.Folders(r.Context(), l.account, l.secret)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	metricAuth.WithLabelValues("ok").Inc()

	writeJSON(w, http.StatusOK, folders)
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	l := loginFrom(r.Context())
	folder := r.PathValue("folder")

	pageSize, err := intParam(r, "page_size", s.cfg.DefaultPageSize)
	if err != nil || pageSize < 1 {
		writeError(w, http.StatusBadRequest, "page_size must be a positive integer")
		return
	}
	page, err := intParam(r, "page", 0)
	if err != nil || page < 0 {
		writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
		return
	}

	mails, err := s.backend.List(r.Context(), l.account, l.secret, folder, page, pageSize)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.MessageListing{Mails: mails})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	l := loginFrom(r.Context())
	folder, uid := r.PathValue("folder"), r.PathValue("uid")

	msg, err := s.backend.Fetch(r.Context(), l.account, l.secret, folder, uid)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}

	detail := msg.Detail
	detail.Attachments = make([]model.Attachment, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		detail.Attachments = append(detail.Attachments, s.publish(r.Context(), l.account.Email, uid, part))
	}

	writeJSON(w, http.StatusOK, detail)
}

// publish scans part and, when clean, stores it under its download link.
// Withheld parts carry the reason in AV and no link.
func (s *Server) publish(ctx context.Context, owner, uid string, part backend.Part) model.Attachment {
	att := model.Attachment{
		Filename:    part.Filename,
		ContentType: part.ContentType,
		Size:        int64(len(part.Data)),
	}

	verdict, err := s.scanner.Scan(ctx, part.Filename, part.Data)
	if err != nil {
		metricAttachments.WithLabelValues("scanerror").Inc()
		s.log.Error().Err(err).Str("filename", part.Filename).Msg("AV scan failed")
		att.AV = "scan failed"
		return att
	}
	if verdict != "" {
		metricAttachments.WithLabelValues("infected").Inc()
		s.log.Error().Str("filename", part.Filename).Str("verdict", verdict).Msg("AV scan FAILED")
		att.AV = verdict
		return att
	}

	err = s.store.PutAttachment(ctx, store.Attachment{
		Owner:       owner,
		UID:         uid,
		Filename:    part.Filename,
		ContentType: part.ContentType,
		Data:        part.Data,
	})
	if err != nil {
		metricAttachments.WithLabelValues("storeerror").Inc()
		s.log.Error().Err(err).Str("filename", part.Filename).Msg("Storing attachment failed")
		att.AV = "storage failed"
		return att
	}

	metricAttachments.WithLabelValues("stored").Inc()
	s.log.Debug().Str("filename", part.Filename).Msg("AV scan passed")
	att.Link = AttachmentLink(uid, part.Filename)

	return att
}

// AttachmentLink is the download path of a stored attachment.
func AttachmentLink(uid, filename string) string {
	return "/att/" + url.PathEscape(uid) + "/" + url.PathEscape(filename)
}

func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	l := loginFrom(r.Context())

	// Stored payloads are only checked against the identity, so verify
	// the secret with the mail server first.
	if _, err := s.backend.Folders(r.Context(), l.account, l.secret); err != nil {
		s.writeBackendError(w, r, err)
		return
	}

	att, err := s.store.GetAttachment(r.Context(), l.account.Email, r.PathValue("uid"), r.PathValue("filename"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Attachment not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Reading attachment failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(att.Data)), 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(att.Filename, `"`, "")+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(att.Data)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	l := loginFrom(r.Context())

	err := s.backend.Delete(r.Context(), l.account, l.secret, r.PathValue("folder"), r.PathValue("uid"))
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"msg": "OK"})
}

func (s *Server) handleUnsee(w http.ResponseWriter, r *http.Request) {
	l := loginFrom(r.Context())

	if !truthy(r.URL.Query().Get("unsee")) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	err := s.backend.Unsee(r.Context(), l.account, l.secret, r.PathValue("folder"), r.PathValue("uid"))
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"msg": "OK"})
}

// writeBackendError maps backend failures to gateway statuses.
func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	l := loginFrom(r.Context())

	switch {
	case errors.Is(err, backend.ErrAuthFailed):
		metricAuth.WithLabelValues("unauthorized").Inc()
		s.log.Info().
			Str("account", logging.MaskEmail(l.account.Email)).
			Msg("Attempt to use account FAILED. Unauthorized")
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, backend.ErrFolderNotFound):
		writeError(w, http.StatusNotFound, "Folder not found")
	case errors.Is(err, backend.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "Message not found")
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Backend request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusRecorder captures the status code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// observe logs each request and records its duration by route.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		requestID := r.Header.Get(transport.RequestIDHeader)
		if requestID != "" {
			w.Header().Set(transport.RequestIDHeader, requestID)
		}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metricRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())

		s.log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Str("request_id", requestID).
			Msg("Request served")
	})
}

// withCORS allows browser clients on any origin, including the Basic
// Authorization header.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Expose-Headers", transport.RequestIDHeader)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+transport.RequestIDHeader)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
