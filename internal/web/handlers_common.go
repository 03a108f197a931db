// Package web provides HTTP handlers for the import workflow.
// This file contains shared utilities and helper functions used across handlers.
package web

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/excelsql/internal/logging"
	"github.com/JonMunkholm/excelsql/internal/web/templates"
	"github.com/JonMunkholm/excelsql/internal/workflow"
)

const (
	// maxHistoryLimit caps the runs returned by /api/history.
	maxHistoryLimit = 200

	// sseHeartbeat keeps idle event streams open through proxies.
	sseHeartbeat = 15 * time.Second
)

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// formBool accepts checkbox and boolean spellings.
func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes":
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// reply answers a workflow action. Errors the view already shows are
// rendered as the view; everything else goes through respondError.
func (s *Server) reply(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow, err error) {
	if err != nil && !recorded(err) {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		logging.WithFields(r.Context(), "session_id", SessionID(r.Context())).Info("workflow error shown",
			"path", r.URL.Path,
			"error", err,
			"code", workflow.MapError(err).Code,
		)
	}
	s.render(w, r, wf, status)
}

// render writes the current view: the panel fragment for HTMX, JSON for API
// clients, and a redirect to the page for plain form posts.
func (s *Server) render(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow, status int) {
	v := wf.View()
	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.Panel(v).Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render panel", "error", err)
		}
	case wantsJSON(r):
		writeJSON(w, status, v)
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// responseSink streams an artifact to the browser as an attachment.
type responseSink struct {
	w        http.ResponseWriter
	started  bool
	complete bool
	written  int64
}

func (rs *responseSink) Save(ctx context.Context, filename string, r io.Reader) error {
	h := rs.w.Header()
	h.Set("Content-Type", "application/sql")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	h.Set("Cache-Control", "no-store")

	rs.started = true
	rs.w.WriteHeader(http.StatusOK)

	n, err := io.Copy(rs.w, r)
	rs.written = n
	rs.complete = err == nil
	return err
}
