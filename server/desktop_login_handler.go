package server

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// loginStatus is the progress of a desktop login as it is logged.
type loginStatus string

const (
	loginIdle       loginStatus = "idle"
	loginConnecting loginStatus = "connecting"
	loginSucceed    loginStatus = "succeed"
	loginFailed     loginStatus = "failed"
)

func logLoginStatus(params handoff.SearchParams, status loginStatus) {
	log.Info().Str("provider", params.Provider).Str("status", string(status)).Msg("desktop login")
}

// DesktopLoginHandler is the page the desktop app opens in the system browser. A signed-in
// browser goes straight back to the app with a fast ticket; otherwise the provider
// sign-in starts with callbacks pointing at the handoff page.
func (s *Server) DesktopLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params, err := s.opts.ParseSearchParams(q)
		if err != nil {
			s.renderError(w, r, http.StatusBadRequest, err)
			return
		}
		if params.Scheme != s.opts.Scheme {
			s.renderError(w, r, http.StatusBadRequest, errors.Wrapf(apperrors.ErrBadRequest, "scheme %q", params.Scheme))
			return
		}
		logLoginStatus(params, loginIdle)

		if session, _, err := s.sessionFromRequest(r); err == nil {
			logLoginStatus(params, loginConnecting)
			link, err := s.fastTicketLink(session.UserID, params)
			if err != nil {
				logLoginStatus(params, loginFailed)
				status, _ := errorStatus(err)
				s.renderError(w, r, status, err)
				return
			}
			logLoginStatus(params, loginSucceed)
			http.Redirect(w, r, link, http.StatusFound)
			return
		}

		logLoginStatus(params, loginConnecting)
		signIn := url.Values{}
		signIn.Set("callbackURL", s.handoffPageURL(params, handoff.StatusSucceed))
		signIn.Set("newUserCallbackURL", s.handoffPageURL(params, handoff.StatusNewUser))
		signIn.Set("errorCallbackURL", s.handoffPageURL(params, handoff.StatusError))
		if scopes := q.Get("scopes"); scopes != "" {
			signIn.Set("scopes", scopes)
		}
		if hint := q.Get("loginHint"); hint != "" {
			signIn.Set("loginHint", hint)
		}
		http.Redirect(w, r, signInPrefix+url.PathEscape(params.Provider)+"?"+signIn.Encode(), http.StatusFound)
	}
}

// handoffPageURL is /${HandoffPath}?scheme&provider&challenge&status.
func (s *Server) handoffPageURL(params handoff.SearchParams, status handoff.Status) string {
	params.Status = status
	return "/" + s.opts.HandoffPath + "?" + s.opts.Query(params).Encode()
}
