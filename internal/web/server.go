// Package web provides the HTTP server and handlers for the spreadsheet
// import UI.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/excelsql/internal/archive"
	"github.com/JonMunkholm/excelsql/internal/config"
	"github.com/JonMunkholm/excelsql/internal/converter"
	"github.com/JonMunkholm/excelsql/internal/history"
	"github.com/JonMunkholm/excelsql/internal/session"
	webmw "github.com/JonMunkholm/excelsql/internal/web/middleware"
	"github.com/JonMunkholm/excelsql/internal/workflow"
)

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Sessions *session.Store
	History  history.Recorder

	// Archive receives a copy of every downloaded artifact; nil disables it.
	Archive *archive.Sink

	// Limiter is reported by /api/status when set.
	Limiter *converter.Limiter
}

// Server is the HTTP server for the import workflow.
type Server struct {
	cfg      *config.Config
	sessions *session.Store
	history  history.Recorder
	archive  *archive.Sink
	limiter  *converter.Limiter
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		history:  deps.History,
		archive:  deps.Archive,
		limiter:  deps.Limiter,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)

	// Security hardening
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	s.router.Use(s.withSession)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	apiAuth := webmw.APIKeyAuth(&s.cfg.Security)

	// SSE is long-lived and stays outside the request timeout.
	s.router.With(apiAuth).Get("/api/workflow/events", s.handleEvents)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

		// Pages
		r.Get("/", s.handleIndex)

		// Form actions
		r.Route("/workflow", func(r chi.Router) {
			r.Post("/master", s.handleSelect(workflow.SlotMaster))
			r.Post("/employee", s.handleSelect(workflow.SlotEmployee))
			r.Post("/config", s.handleConfig)
			r.Post("/validate", s.handleValidate)
			r.Post("/generate", s.handleGenerate)
			r.Post("/show-validation", s.handleShowValidation)
			r.Post("/reset", s.handleReset)
			r.Get("/download/{filename}", s.handleDownload)
		})

		// API routes
		r.With(apiAuth).Get("/api/workflow", s.handleWorkflowJSON)
		r.With(apiAuth).Get("/api/history", s.handleHistory)
		r.With(apiAuth).Get("/api/status", s.handleStatus)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: 0, // Disabled for SSE
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	csp := strings.Join([]string{
		"default-src 'self'",
		"script-src 'self' https://unpkg.com",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
	}, "; ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME type sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			if enableCSP {
				w.Header().Set("Content-Security-Policy", csp)
			}

			// Control referrer information
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
