package server

import (
	"net/http"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionHandler returns the current session and its user.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, user, ok := sessionFromContext(r.Context())
		if !ok {
			s.apiError(w, r, errors.Wrap(apperrors.ErrUnauthorized, "no session"))
			return
		}
		writeJSON(w, newSessionResponse(session, user), http.StatusOK)
	}
}

// SignOutHandler deletes the session, if any, and expires the cookie.
func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(sessions.CookieName); err == nil {
			if token, err := s.cookies.Verify(cookie.Value); err == nil {
				if err := s.repos.Sessions.Delete(token); err != nil {
					log.Err(err).Msg("failed to delete session")
				}
			}
		}
		http.SetCookie(w, sessions.ExpiredCookie())
		writeJSON(w, map[string]bool{"success": true}, http.StatusOK)
	}
}
