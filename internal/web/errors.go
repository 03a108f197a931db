package web

// errors.go provides unified error response handling for the web layer.
//
// Workflow errors come in two flavours:
//   - Recorded errors (input and transport failures, superseded results)
//     are already reflected in the session state, so the response is simply
//     the current view.
//   - Rejections (busy, bad artifact reference, nothing to show) leave the
//     state alone and are answered with a mapped error response.
//
// Either way the technical error is logged with the request and session IDs
// and the client only sees the user message from workflow.MapError.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/excelsql/internal/logging"
	"github.com/JonMunkholm/excelsql/internal/web/templates"
	"github.com/JonMunkholm/excelsql/internal/workflow"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps a workflow error to an HTTP status code.
func statusFor(err error) int {
	var ie *workflow.InputError
	var te *workflow.TransportError
	switch {
	case errors.Is(err, workflow.ErrBusy),
		errors.Is(err, workflow.ErrSuperseded),
		errors.Is(err, workflow.ErrNoEmbeddedValidation):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidArtifactReference):
		return http.StatusNotFound
	case errors.As(err, &ie):
		return http.StatusUnprocessableEntity
	case errors.As(err, &te):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// recorded reports whether the current view already accounts for err.
func recorded(err error) bool {
	var ie *workflow.InputError
	var te *workflow.TransportError
	return errors.As(err, &ie) || errors.As(err, &te) || errors.Is(err, workflow.ErrSuperseded)
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns an appropriate response
// based on the request type (HTMX, JSON, or HTML).
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := workflow.MapError(err)

	logging.WithFields(r.Context(), "session_id", SessionID(r.Context())).Warn("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	// Return user-friendly error based on request type
	if isHTMX(r) {
		s.renderErrorPartial(w, r, userMsg, statusCode)
	} else if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
	} else {
		respondErrorHTML(w, userMsg, statusCode)
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg workflow.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondErrorHTML writes a plain HTML error response.
func respondErrorHTML(w http.ResponseWriter, msg workflow.UserMessage, statusCode int) {
	http.Error(w, msg.Message+" ("+msg.Code+")", statusCode)
}

// renderErrorPartial renders an HTMX-compatible error fragment.
func (s *Server) renderErrorPartial(w http.ResponseWriter, r *http.Request, msg workflow.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// HTMX only swaps 2xx responses. The alert goes in at the top of the
	// panel and the real status travels in a header.
	w.Header().Set("HX-Retarget", "#"+templates.PanelID)
	w.Header().Set("HX-Reswap", "afterbegin")
	w.Header().Set("X-Error-Status", strconv.Itoa(statusCode))
	w.WriteHeader(http.StatusOK)

	templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	contentType := r.Header.Get("Content-Type")

	// Check Accept header
	if strings.Contains(accept, "application/json") {
		return true
	}

	// Check if request is sending JSON
	if strings.Contains(contentType, "application/json") {
		return true
	}

	// API routes default to JSON
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}

	return false
}
