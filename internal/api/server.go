// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/elfinder/internal/auth"
	"github.com/fruitsalade/elfinder/internal/connector"
	"github.com/fruitsalade/elfinder/internal/logging"
	"github.com/fruitsalade/elfinder/internal/metrics"
)

// Server is the HTTP server.
type Server struct {
	conn        *connector.Connector
	auth        *auth.Auth
	filesPrefix string
}

// NewServer creates a new server. A nil authHandler leaves every route
// public.
func NewServer(conn *connector.Connector, authHandler *auth.Auth, filesPrefix string) *Server {
	if filesPrefix == "" {
		filesPrefix = "/files/"
	}
	return &Server{
		conn:        conn,
		auth:        authHandler,
		filesPrefix: filesPrefix,
	}
}

// Handler returns the HTTP handler with auth, logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Protected endpoints
	protected := http.NewServeMux()
	protected.HandleFunc("GET /connector", s.handleConnector)
	protected.HandleFunc("POST /connector", s.handleConnector)
	protected.Handle("GET "+s.filesPrefix, http.StripPrefix(
		strings.TrimSuffix(s.filesPrefix, "/"),
		http.FileServer(&publicFS{conn: s.conn}),
	))

	var h http.Handler = protected
	if s.auth != nil {
		h = s.auth.Middleware(protected)
	}
	mux.Handle("/connector", h)
	mux.Handle(s.filesPrefix, h)

	return metrics.Middleware(s.filesPrefix, []string{"/health", "/connector"}, logging.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "api": connector.APIVersion})
}

func (s *Server) handleConnector(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request parameters")
		return
	}

	resp, err := s.conn.Run(r.Context(), connector.ParseRequest(r.Form))
	if err != nil {
		code, msg := errorStatus(err)
		if code == http.StatusInternalServerError {
			logging.WithContext(r.Context()).Error("connector failure", zap.Error(err))
		}
		s.sendError(w, code, msg)
		return
	}
	s.sendJSON(w, resp)
}

// errorStatus maps a connector error to a status code and a client-safe
// message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, connector.ErrInvalidRoot):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, connector.ErrAccessDenied):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, connector.ErrUnknownCommand), errors.Is(err, connector.ErrBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, connector.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request canceled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("encode response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// publicFS exposes the connector root to http.FileServer. It hides what
// the listings hide (except the thumbnail store), refuses directories and
// applies the read policy.
type publicFS struct {
	conn *connector.Connector
}

func (p *publicFS) Open(name string) (http.File, error) {
	opts := p.conn.Options()
	rel := strings.TrimPrefix(path.Clean("/"+name), "/")
	if rel == "" {
		return nil, fs.ErrNotExist
	}
	if !p.visible(rel, opts) {
		return nil, fs.ErrNotExist
	}

	full := filepath.Join(opts.Root, filepath.FromSlash(rel))
	if !insideRoot(opts.Root, full) {
		return nil, fs.ErrNotExist
	}
	st, err := os.Stat(full)
	if err != nil || st.IsDir() {
		return nil, fs.ErrNotExist
	}
	if !p.conn.IsAllowed(full, connector.ModeRead) {
		return nil, fs.ErrPermission
	}
	return os.Open(full)
}

// insideRoot reports whether full, with symlinks resolved, stays below root.
func insideRoot(root, full string) bool {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		return false
	}
	return strings.HasPrefix(real, realRoot+string(filepath.Separator))
}

func (p *publicFS) visible(rel string, opts connector.Options) bool {
	if tmb := p.conn.ThumbnailDir(); tmb != "" {
		tmbRel := filepath.ToSlash(filepath.Clean(opts.TmbDir))
		if strings.HasPrefix(rel, tmbRel+"/") {
			return true
		}
	}
	for _, seg := range strings.Split(rel, "/") {
		if !p.conn.IsAccepted(seg) {
			return false
		}
	}
	return true
}
