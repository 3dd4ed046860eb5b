package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/pkce"
	"github.com/jrsteele09/go-desktop-handoff/sessions"
	"github.com/jrsteele09/go-desktop-handoff/ticket"
	"github.com/pkg/errors"
)

const (
	defaultUserAgent = "Desktop"
	maxBodyBytes     = 16 << 10
)

// ExchangeRequest is the body of the exchange endpoint.
type ExchangeRequest struct {
	Ticket   string `json:"ticket"`
	Verifier string `json:"verifier"`
}

func (req ExchangeRequest) validate() error {
	if req.Ticket == "" || !handoff.IsURLSafeToken(req.Ticket) {
		return errors.Wrap(apperrors.ErrBadRequest, "ticket must be a url-safe token")
	}
	if len(req.Verifier) < 43 || len(req.Verifier) > 128 || !handoff.IsURLSafeToken(req.Verifier) {
		return errors.Wrap(apperrors.ErrBadRequest, "verifier must be 43-128 url-safe characters")
	}
	return nil
}

// validatePayload checks a decrypted ticket against what this server issues.
func (s *Server) validatePayload(p ticket.Payload) error {
	if !handoff.IsURLSafeToken(p.UserID) {
		return errors.Wrap(apperrors.ErrForbidden, "ticket userid is invalid")
	}
	if !s.opts.IsProvider(p.Provider) {
		return errors.Wrap(apperrors.ErrForbidden, "ticket provider is not allowed")
	}
	if !pkce.IsChallenge(p.Challenge) {
		return errors.Wrap(apperrors.ErrForbidden, "ticket challenge is invalid")
	}
	if p.Status != "" {
		if _, ok := handoff.ParseStatus(p.Status); !ok {
			return errors.Wrap(apperrors.ErrForbidden, "ticket status is invalid")
		}
	}
	if p.Scheme != s.opts.Scheme {
		return errors.Wrap(apperrors.ErrSchemeMismatch, "ticket scheme")
	}
	return nil
}

// ExchangeHandler trades a ticket plus the PKCE verifier for a session cookie.
func (s *Server) ExchangeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExchangeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			s.apiError(w, r, errors.Wrap(apperrors.ErrBadRequest, err.Error()))
			return
		}
		if err := req.validate(); err != nil {
			s.apiError(w, r, err)
			return
		}
		if r.Header.Get("Origin") != s.opts.AppOrigin() {
			s.apiError(w, r, errors.Wrapf(apperrors.ErrForbidden, "origin %q", r.Header.Get("Origin")))
			return
		}

		payload, err := s.tickets.DecryptPayload(req.Ticket)
		if err != nil {
			s.apiError(w, r, apperrors.Trace(err, "decrypt ticket", nil))
			return
		}
		if err := s.validatePayload(payload); err != nil {
			s.apiError(w, r, apperrors.Trace(err, "validate ticket", map[string]string{"provider": payload.Provider}))
			return
		}
		if !pkce.Verify(req.Verifier, payload.Challenge) {
			s.apiError(w, r, errors.Wrap(apperrors.ErrChallengeMismatch, "verifier does not match the ticket challenge"))
			return
		}

		user, err := s.repos.Users.GetByID(payload.UserID)
		if err != nil {
			s.apiError(w, r, errors.Wrapf(apperrors.ErrUnauthorized, "ticket user: %v", err))
			return
		}

		userAgent := r.UserAgent()
		if userAgent == "" {
			userAgent = defaultUserAgent
		}
		session, err := sessions.New(user.ID, userAgent, clientIP(r), s.opts.SessionDuration, s.nowTime())
		if err != nil {
			s.apiError(w, r, errors.Wrap(apperrors.ErrInternal, err.Error()))
			return
		}
		value, err := s.cookies.Sign(session.Token)
		if err != nil {
			s.apiError(w, r, errors.Wrap(apperrors.ErrInternal, err.Error()))
			return
		}
		if err := s.repos.Sessions.Create(session); err != nil {
			s.apiError(w, r, errors.Wrap(apperrors.ErrInternal, err.Error()))
			return
		}

		http.SetCookie(w, sessions.Cookie(value, s.opts.SessionDuration))
		writeJSON(w, newSessionResponse(session, user), http.StatusOK)
	}
}
