package renderer

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrRequestCanceled is returned for backend requests a BeforeSendFunc cancels.
var ErrRequestCanceled = errors.New("backend request canceled")

// BeforeSendFunc sees every backend request before it is sent. It returns headers to merge
// into the request, or cancel to drop it.
type BeforeSendFunc func(req *http.Request) (extra http.Header, cancel bool)

// HeaderTransport makes every backend request look like it came from the UI's own origin:
// Origin and Referer are set to the app origin, and the cookies held for the backend are
// attached when the request has none. Other requests pass through untouched.
type HeaderTransport struct {
	origin     string
	backend    *url.URL
	jar        http.CookieJar
	next       http.RoundTripper
	beforeSend BeforeSendFunc
}

var _ http.RoundTripper = (*HeaderTransport)(nil)

// TransportOption configures a HeaderTransport.
type TransportOption func(*HeaderTransport)

// WithBeforeSend installs a hook run before each backend request.
func WithBeforeSend(fn BeforeSendFunc) TransportOption {
	return func(t *HeaderTransport) {
		t.beforeSend = fn
	}
}

// WithNextTransport sets the transport requests are handed to. The default is
// http.DefaultTransport.
func WithNextTransport(next http.RoundTripper) TransportOption {
	return func(t *HeaderTransport) {
		if next != nil {
			t.next = next
		}
	}
}

// NewHeaderTransport creates a transport for opts.BackendURL. jar may be nil, in which case
// no cookies are attached.
func NewHeaderTransport(opts handoff.Options, jar http.CookieJar, options ...TransportOption) (*HeaderTransport, error) {
	backend, err := url.Parse(opts.BackendURL)
	if err != nil {
		return nil, errors.Wrapf(err, "[NewHeaderTransport] bad backend url %q", opts.BackendURL)
	}
	if backend.Host == "" {
		return nil, errors.New("[NewHeaderTransport] backend url is required")
	}
	t := &HeaderTransport{
		origin:  opts.AppOrigin(),
		backend: backend,
		jar:     jar,
		next:    http.DefaultTransport,
	}
	for _, option := range options {
		option(t)
	}
	return t, nil
}

func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.isBackend(req.URL) {
		return t.next.RoundTrip(req)
	}

	var extra http.Header
	if t.beforeSend != nil {
		var cancel bool
		extra, cancel = t.beforeSend(req)
		if cancel {
			if req.Body != nil {
				_ = req.Body.Close()
			}
			log.Debug().Str("url", req.URL.String()).Msg("backend request canceled")
			return nil, errors.Wrapf(ErrRequestCanceled, "[HeaderTransport] %s %s", req.Method, req.URL.Path)
		}
	}

	out := req.Clone(req.Context())
	for name, values := range extra {
		out.Header.Del(name)
		for _, v := range values {
			out.Header.Add(name, v)
		}
	}
	out.Header.Set("Origin", t.origin)
	out.Header.Set("Referer", t.origin)
	if out.Header.Get("Cookie") == "" && t.jar != nil {
		if cookies := t.jar.Cookies(req.URL); len(cookies) > 0 {
			pairs := make([]string, 0, len(cookies))
			for _, c := range cookies {
				pairs = append(pairs, c.Name+"="+c.Value)
			}
			out.Header.Set("Cookie", strings.Join(pairs, "; "))
		}
	}
	return t.next.RoundTrip(out)
}

func (t *HeaderTransport) isBackend(u *url.URL) bool {
	if !strings.EqualFold(u.Scheme, t.backend.Scheme) || !strings.EqualFold(u.Host, t.backend.Host) {
		return false
	}
	prefix := strings.TrimSuffix(t.backend.Path, "/")
	return u.Path == prefix || strings.HasPrefix(u.Path, prefix+"/")
}
