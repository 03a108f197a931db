package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/excelsql/internal/converter"
	"github.com/JonMunkholm/excelsql/internal/logging"
	"github.com/JonMunkholm/excelsql/internal/web/templates"
	"github.com/JonMunkholm/excelsql/internal/workflow"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// handleIndex renders the page for the session's current mode.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	wf := s.flow(r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Page(wf.View()).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render page", "error", err)
	}
}

// handleSelect admits an uploaded spreadsheet into slot.
func (s *Server) handleSelect(slot workflow.Slot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := s.cfg.Converter.MaxFileSize
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartMemory)

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			s.respondUploadError(w, r, err)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, r, fmt.Errorf("read form file: %w", err), http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > limit {
			s.respondUploadError(w, r, &http.MaxBytesError{Limit: limit})
			return
		}
		content, err := io.ReadAll(file)
		if err != nil {
			s.respondUploadError(w, r, err)
			return
		}

		wf := s.flow(r)
		err = wf.Select(slot, header.Filename, content)
		logging.WithFields(r.Context(), "session_id", SessionID(r.Context())).Info("file selected",
			"slot", slot,
			"name", header.Filename,
			"size", len(content),
			"admitted", err == nil,
		)
		s.reply(w, r, wf, err)
	}
}

func (s *Server) respondUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.respondError(w, r, fmt.Errorf("upload exceeds %d bytes: %w", s.cfg.Converter.MaxFileSize, err), http.StatusRequestEntityTooLarge)
		return
	}
	s.respondError(w, r, fmt.Errorf("parse upload: %w", err), http.StatusBadRequest)
}

// handleConfig updates the generation parameters from form text.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, fmt.Errorf("parse form: %w", err), http.StatusBadRequest)
		return
	}

	wf := s.flow(r)
	err := wf.SetConfigText(
		r.FormValue("tenant_id"),
		r.FormValue("operated_by_uid"),
		r.FormValue("starting_uid"),
	)
	s.reply(w, r, wf, err)
}

// handleValidate runs a validation and waits for it.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	wf := s.flow(r)
	s.reply(w, r, wf, wf.Validate(r.Context()))
}

// handleGenerate runs a generation and waits for it.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, fmt.Errorf("parse form: %w", err), http.StatusBadRequest)
		return
	}

	wf := s.flow(r)
	skip := formBool(r.FormValue("skip_validation"))
	s.reply(w, r, wf, wf.Generate(r.Context(), skip))
}

// handleShowValidation re-displays the report embedded in a failed
// generation.
func (s *Server) handleShowValidation(w http.ResponseWriter, r *http.Request) {
	wf := s.flow(r)
	s.reply(w, r, wf, wf.ShowValidationDetails())
}

// handleReset drops the session's workflow so the next request starts from
// the configured defaults. Open event streams receive a closed event.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := SessionID(r.Context())
	s.sessions.Remove(id)
	logging.FromContext(r.Context()).Info("session reset", "session_id", id)
	s.render(w, r, s.flow(r), http.StatusOK)
}

// handleDownload streams the current artifact to the browser, copying it to
// the archive when one is configured.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(filename); err == nil {
			filename = unescaped
		}
	}

	wf := s.flow(r)
	logger := logging.WithFields(r.Context(),
		"session_id", SessionID(r.Context()),
		"filename", filename,
	)

	rs := &responseSink{w: w}
	var sink workflow.Sink = rs
	if s.archive != nil {
		scope := fmt.Sprintf("tenant-%d", wf.State().Config.TenantID)
		sink = workflow.TeeSink{
			Primary: rs,
			Mirrors: []workflow.Sink{s.archive.WithPrefix(scope)},
			OnMirrorError: func(name string, err error) {
				logger.Warn("archive copy failed", "error", err)
			},
		}
	}

	err := wf.Download(r.Context(), filename, sink)
	if err == nil {
		logger.Info("artifact downloaded", "bytes", rs.written)
		return
	}
	if rs.started {
		if rs.complete && errors.Is(err, workflow.ErrSuperseded) {
			// Every byte reached the browser; a newer file selection only
			// invalidated the artifact afterwards.
			logger.Info("artifact downloaded, then superseded by a file selection", "bytes", rs.written)
			return
		}
		// Headers are gone; the browser sees a truncated file.
		logger.Error("download interrupted", "error", err, "bytes", rs.written)
		return
	}
	if recorded(err) && !isHTMX(r) && !wantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.respondError(w, r, err, statusFor(err))
}

// handleWorkflowJSON returns the session's view.
func (s *Server) handleWorkflowJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flow(r).View())
}

// handleHistory returns the most recent generation runs.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	runs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("load history: %w", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// statusResponse reports server load for monitoring.
type statusResponse struct {
	Sessions    int                      `json:"sessions"`
	SessionMode string                   `json:"session_mode,omitempty"`
	Converter   *converter.LimiterStatus `json:"converter,omitempty"`
	Archive     bool                     `json:"archive"`
}

// handleStatus reports live sessions, converter slots and the caller's own
// mode. It never creates a workflow for the caller.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Sessions: s.sessions.Len(),
		Archive:  s.archive != nil,
	}
	if wf, ok := s.sessions.Get(SessionID(r.Context())); ok {
		resp.SessionMode = wf.Mode().String()
	}
	if s.limiter != nil {
		st := s.limiter.Status()
		resp.Converter = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents streams the session's view via Server-Sent Events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	wf := s.flow(r)

	// Set up SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// ResponseController sees through middleware wrappers via Unwrap.
	flusher := http.NewResponseController(w)
	if err := flusher.Flush(); err != nil {
		s.respondError(w, r, fmt.Errorf("streaming not supported: %w", err), http.StatusInternalServerError)
		return
	}

	views, unsubscribe := wf.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case v, ok := <-views:
			if !ok {
				// Session evicted
				fmt.Fprintf(w, "event: closed\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			data, _ := json.Marshal(v)
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			// Client disconnected
			return
		}
	}
}
