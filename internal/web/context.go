package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/excelsql/internal/session"
	"github.com/JonMunkholm/excelsql/internal/workflow"
)

type sessionKey struct{}

// withSession resolves the session cookie, issuing a fresh ID when it is
// missing or malformed, and stores the ID in the request context.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := s.cfg.Session.CookieName

		var id string
		if c, err := r.Cookie(name); err == nil && session.Valid(c.Value) {
			id = c.Value
		} else {
			id = session.NewID()
			http.SetCookie(w, &http.Cookie{
				Name:     name,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.cfg.Session.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, id)))
	})
}

// SessionID returns the session ID stored by the session middleware.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// flow returns the request's session workflow, creating it on first use.
func (s *Server) flow(r *http.Request) *workflow.Workflow {
	wf, _ := s.sessions.GetOrCreate(SessionID(r.Context()))
	return wf
}
