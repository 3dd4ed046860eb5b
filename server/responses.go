package server

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/sessions"
	"github.com/jrsteele09/go-desktop-handoff/users"
	"github.com/rs/zerolog/log"
)

type sessionTimes struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionResponse is the body of the exchange and session endpoints.
type SessionResponse struct {
	Session sessionTimes `json:"session"`
	User    *users.User  `json:"user"`
}

func newSessionResponse(session *sessions.Session, user *users.User) SessionResponse {
	return SessionResponse{
		Session: sessionTimes{
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
			ExpiresAt: session.ExpiresAt,
		},
		User: user,
	}
}

func writeJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// errorStatus maps an error onto the HTTP status and error code the client sees.
func errorStatus(err error) (int, string) {
	switch {
	case apperrors.Is(err, apperrors.ErrBadRequest), apperrors.Is(err, apperrors.ErrInvalidParameter):
		return http.StatusBadRequest, "invalid_request"
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case apperrors.Is(err, apperrors.ErrForbidden),
		apperrors.Is(err, apperrors.ErrCryptoInit),
		apperrors.Is(err, apperrors.ErrCryptoOp),
		apperrors.Is(err, apperrors.ErrSerialization),
		apperrors.Is(err, apperrors.ErrMalformedTicket),
		apperrors.Is(err, apperrors.ErrTicketAuth),
		apperrors.Is(err, apperrors.ErrTicketExpired),
		apperrors.Is(err, apperrors.ErrSchemeMismatch),
		apperrors.Is(err, apperrors.ErrChallengeMismatch):
		return http.StatusForbidden, "forbidden"
	case apperrors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "server_error"
}

// apiError logs the cause and trail, and answers with a generic JSON error.
func (s *Server) apiError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Int("status", status).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Interface("trail", apperrors.Crumbs(err)).
		Msg("request rejected")
	writeJSONError(w, code, http.StatusText(status), status)
}
