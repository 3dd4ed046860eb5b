package server

import (
	"context"
	"net/http"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/sessions"
	"github.com/jrsteele09/go-desktop-handoff/users"
	"github.com/pkg/errors"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the *sessions.Session of the request
	ContextKeySession ContextKey = "session"
	// ContextKeyUser stores the *users.User the session belongs to
	ContextKeyUser ContextKey = "user"
)

// RequireSessionAuth is middleware for API routes that need a signed-in session cookie
func (s *Server) RequireSessionAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session, user, err := s.sessionFromRequest(r)
			if err != nil {
				s.apiError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			ctx = context.WithValue(ctx, ContextKeyUser, user)
			next(w, r.WithContext(ctx))
		}
	}
}

// sessionFromRequest resolves the session cookie. Every failure is ErrUnauthorized.
func (s *Server) sessionFromRequest(r *http.Request) (*sessions.Session, *users.User, error) {
	cookie, err := r.Cookie(sessions.CookieName)
	if err != nil {
		return nil, nil, errors.Wrap(apperrors.ErrUnauthorized, "no session cookie")
	}
	token, err := s.cookies.Verify(cookie.Value)
	if err != nil {
		return nil, nil, err
	}
	return s.resolveSession(token)
}

func (s *Server) resolveSession(token string) (*sessions.Session, *users.User, error) {
	session, err := s.repos.Sessions.GetByToken(token)
	if err != nil {
		return nil, nil, errors.Wrapf(apperrors.ErrUnauthorized, "session lookup: %v", err)
	}
	if session.Expired(s.nowTime()) {
		if err := s.repos.Sessions.Delete(token); err != nil {
			logError("DELETE", "session", err)
		}
		return nil, nil, errors.Wrap(apperrors.ErrUnauthorized, "session expired")
	}
	user, err := s.repos.Users.GetByID(session.UserID)
	if err != nil {
		return nil, nil, errors.Wrapf(apperrors.ErrUnauthorized, "session user: %v", err)
	}
	return session, user, nil
}

func sessionFromContext(ctx context.Context) (*sessions.Session, *users.User, bool) {
	session, ok := ctx.Value(ContextKeySession).(*sessions.Session)
	if !ok {
		return nil, nil, false
	}
	user, ok := ctx.Value(ContextKeyUser).(*users.User)
	return session, user, ok
}
