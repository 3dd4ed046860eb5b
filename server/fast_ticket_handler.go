package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/ticket"
	"github.com/pkg/errors"
)

// FastTicketRequest is the body of the fast ticket endpoint.
type FastTicketRequest struct {
	UserID    string `json:"userid"`
	Scheme    string `json:"scheme"`
	Provider  string `json:"provider"`
	Challenge string `json:"challenge"`
}

// FastTicketResponse carries the deep link the browser should open.
type FastTicketResponse struct {
	Redirect string `json:"redirect"`
}

// FastTicketHandler mints a ticket for an already signed-in user.
func (s *Server) FastTicketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _, ok := sessionFromContext(r.Context())
		if !ok {
			s.apiError(w, r, errors.Wrap(apperrors.ErrUnauthorized, "no session"))
			return
		}

		var req FastTicketRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			s.apiError(w, r, errors.Wrap(apperrors.ErrBadRequest, err.Error()))
			return
		}
		params, err := s.opts.ParseSearchParams(url.Values{
			s.opts.SchemeParam:    {req.Scheme},
			s.opts.ProviderParam:  {req.Provider},
			s.opts.ChallengeParam: {req.Challenge},
		})
		if err != nil {
			s.apiError(w, r, err)
			return
		}
		if !handoff.IsURLSafeToken(req.UserID) {
			s.apiError(w, r, errors.Wrap(apperrors.ErrBadRequest, "userid must be a url-safe token"))
			return
		}
		if params.Scheme != s.opts.Scheme {
			s.apiError(w, r, errors.Wrapf(apperrors.ErrForbidden, "scheme %q", params.Scheme))
			return
		}
		if session.UserID != req.UserID {
			s.apiError(w, r, errors.Wrap(apperrors.ErrForbidden, "userid does not own the session"))
			return
		}

		link, err := s.fastTicketLink(session.UserID, params)
		if err != nil {
			s.apiError(w, r, err)
			return
		}
		writeJSON(w, FastTicketResponse{Redirect: link}, http.StatusOK)
	}
}

// fastTicketLink mints a ticket without status and returns the succeed deep link.
func (s *Server) fastTicketLink(userID string, params handoff.SearchParams) (string, error) {
	tkt, err := s.tickets.Encrypt(ticket.Payload{
		UserID:    userID,
		Scheme:    params.Scheme,
		Provider:  params.Provider,
		Challenge: params.Challenge,
	}, s.opts.TicketTTL)
	if err != nil {
		return "", apperrors.Trace(err, "mint fast ticket", nil)
	}
	return s.opts.DeepLink(handoff.StatusSucceed, params.Challenge, tkt), nil
}
