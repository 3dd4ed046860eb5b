package server

import (
	"bytes"
	"net/http"
	"net/url"
	"path"
	"regexp"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/ticket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var sessionTokenCookie = regexp.MustCompile(`(?i)(?:^|;)\s*(?:[\w.-]+\.)?session_token=([^;]+)`)

// responseCapture buffers a handler's response so the interceptor can rewrite it.
type responseCapture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseCapture() *responseCapture {
	return &responseCapture{header: http.Header{}, status: http.StatusOK}
}

func (c *responseCapture) Header() http.Header { return c.header }

func (c *responseCapture) Write(b []byte) (int, error) { return c.body.Write(b) }

func (c *responseCapture) WriteHeader(status int) { c.status = status }

// flush replays the captured response onto w.
func (c *responseCapture) flush(w http.ResponseWriter) {
	for name, values := range c.header {
		w.Header()[name] = values
	}
	w.WriteHeader(c.status)
	_, _ = w.Write(c.body.Bytes())
}

// handoffFailure is an interceptor failure; status is logged, the browser goes to the
// error page.
type handoffFailure struct {
	status int
	err    error
}

func fail(status int, err error) *handoffFailure {
	return &handoffFailure{status: status, err: err}
}

// CallbackInterceptor wraps the provider callback. When the callback redirects to the
// desktop handoff page, the web session it just created is turned into a ticket and the
// browser is sent to the app's deep link instead.
func (s *Server) CallbackInterceptor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		capture := newResponseCapture()
		next(capture, r)

		location, err := url.Parse(capture.header.Get("Location"))
		if err != nil || location.Path != "/"+s.opts.HandoffPath {
			capture.flush(w)
			return
		}

		link, failure := s.handoff(r, capture, location)
		if failure != nil {
			log.Err(failure.err).
				Int("status", failure.status).
				Str("path", r.URL.Path).
				Interface("trail", apperrors.Crumbs(failure.err)).
				Msg("desktop handoff failed")
			capture.header.Del("Set-Cookie")
			s.redirectToErrorPage(w, r, failure.status)
			return
		}
		if link == "" {
			capture.flush(w)
			return
		}

		for name, values := range capture.header {
			if name == "Location" || name == "Set-Cookie" {
				continue
			}
			w.Header()[name] = values
		}
		http.Redirect(w, r, link, http.StatusFound)
	}
}

// handoff returns the deep link for the captured response, or "" when the response is
// not a desktop handoff.
func (s *Server) handoff(r *http.Request, capture *responseCapture, location *url.URL) (string, *handoffFailure) {
	params, err := s.opts.ParseSearchParams(location.Query())
	if err != nil {
		return "", fail(http.StatusBadRequest, err)
	}
	if params.Status == "" {
		return "", nil
	}
	if params.Status == handoff.StatusError {
		log.Info().Str("provider", params.Provider).Msg("provider sign-in failed, returning to app")
		capture.header.Del("Set-Cookie")
		return s.opts.DeepLink(handoff.StatusError, params.Challenge, ""), nil
	}

	if provider := path.Base(r.URL.Path); provider != params.Provider {
		return "", fail(http.StatusForbidden, errors.Wrapf(apperrors.ErrForbidden, "callback provider %q != %q", provider, params.Provider))
	}
	if params.Scheme != s.opts.Scheme {
		return "", fail(http.StatusForbidden, errors.Wrapf(apperrors.ErrSchemeMismatch, "scheme %q", params.Scheme))
	}

	cookies := capture.header.Values("Set-Cookie")
	if len(cookies) == 0 {
		return "", fail(http.StatusInternalServerError, errors.Wrap(apperrors.ErrInternal, "callback set no session cookie"))
	}
	capture.header.Del("Set-Cookie")

	token, err := s.sessionTokenFromCookies(cookies)
	if err != nil {
		return "", fail(http.StatusUnauthorized, err)
	}
	session, _, err := s.resolveSession(token)
	if err != nil {
		return "", fail(http.StatusUnauthorized, err)
	}

	tkt, err := s.tickets.Encrypt(ticket.Payload{
		UserID:    session.UserID,
		Scheme:    params.Scheme,
		Provider:  params.Provider,
		Challenge: params.Challenge,
		Status:    string(params.Status),
	}, s.opts.TicketTTL)
	if err != nil {
		return "", fail(http.StatusForbidden, apperrors.Trace(err, "mint ticket", map[string]string{"provider": params.Provider}))
	}
	log.Info().Str("provider", params.Provider).Str("status", string(params.Status)).Msg("desktop handoff ticket issued")
	return s.opts.DeepLink(params.Status, params.Challenge, tkt), nil
}

// sessionTokenFromCookies finds the session cookie among Set-Cookie values and verifies
// its signature.
func (s *Server) sessionTokenFromCookies(cookies []string) (string, error) {
	for _, c := range cookies {
		m := sessionTokenCookie.FindStringSubmatch(c)
		if m == nil || m[1] == "" {
			continue
		}
		token, err := s.cookies.Verify(m[1])
		if err != nil {
			return "", err
		}
		return token, nil
	}
	return "", errors.Wrap(apperrors.ErrUnauthorized, "no session token cookie")
}

func (s *Server) redirectToErrorPage(w http.ResponseWriter, r *http.Request, status int) {
	target := s.opts.ErrorPageURL
	if u, err := url.Parse(target); err == nil {
		q := u.Query()
		q.Set("error", http.StatusText(status))
		u.RawQuery = q.Encode()
		target = u.String()
	}
	http.Redirect(w, r, target, http.StatusFound)
}
