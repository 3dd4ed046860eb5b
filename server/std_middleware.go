package server

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler) // Call the middleware function
	}
	return chainedHandler
}

func (s *Server) HTMLMiddleWare(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chainedMiddleWare := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.FrameSecurityMiddleware,
		s.CookieRelaxMiddleware,
	}
	chainedMiddleWare = append(chainedMiddleWare, mw...)
	return chainedMiddleWare
}

func (s *Server) APIMiddleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chainedMiddleWare := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.CorsMiddleware,
		s.CookieRelaxMiddleware,
	}
	chainedMiddleWare = append(chainedMiddleWare, mw...)
	return chainedMiddleWare
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.env != "DEV" {
			next(w, r)
			return
		}
		logRoute(r.Method, r.URL.Path)
		next(w, r)
	}
}

func (s *Server) FrameSecurityMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Prevent embedding on other sites
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'self'")
		next(w, r)
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logError(r.Method, r.URL.Path, errors.Errorf("panic: %v", rec))
				log.Debug().Str("stack", string(debug.Stack())).Msg("panic stack")
				writeJSONError(w, "server_error", http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

func (s *Server) CorsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// No Origin header = same-origin request, no CORS headers needed
		if origin == "" {
			next(w, r)
			return
		}

		isAllowed := s.allowedOrigins.IsAllowedOrigin(origin)
		isWildcard := s.allowedOrigins.IsAllowedOrigin("*")

		if r.Method == http.MethodOptions {
			if isAllowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", s.config.GetAllowedMethods())
				w.Header().Set("Access-Control-Allow-Headers", s.config.GetAllowedHeaders())
				w.Header().Set("Access-Control-Max-Age", "86400")
			} else if isWildcard {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", s.config.GetAllowedMethods())
				w.Header().Set("Access-Control-Allow-Headers", s.config.GetAllowedHeaders())
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			// Not allowed: no CORS headers, the browser blocks the real request
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if isAllowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		} else if isWildcard {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		next(w, r)
	}
}

// CookieRelaxMiddleware rewrites the cookies of responses to the desktop UI so they are
// sent from its custom-scheme origin. See RelaxCookie.
func (s *Server) CookieRelaxMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") != s.opts.AppOrigin() {
			next(w, r)
			return
		}
		next(&cookieRelaxWriter{ResponseWriter: w, secure: isSecureRequest(r)}, r)
	}
}

// isSecureRequest reports whether the client reached the backend over TLS, directly or
// through a proxy that sets X-Forwarded-Proto.
func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

type cookieRelaxWriter struct {
	http.ResponseWriter
	secure      bool
	wroteHeader bool
}

func (w *cookieRelaxWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		header := w.Header()
		if cookies := header.Values("Set-Cookie"); len(cookies) > 0 {
			header.Del("Set-Cookie")
			for _, c := range cookies {
				header.Add("Set-Cookie", RelaxCookie(c, w.secure))
			}
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *cookieRelaxWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

var (
	strictSameSite = regexp.MustCompile(`(?i);(\s*)samesite\s*=\s*(lax|strict)\b`)
	hasSameSite    = regexp.MustCompile(`(?i);\s*samesite\s*=`)
	anySameSite    = regexp.MustCompile(`(?i);\s*samesite\s*=[^;]*(;|$)`)
	hasSecure      = regexp.MustCompile(`(?i);\s*secure\s*(;|$)`)
)

// RelaxCookie rewrites one Set-Cookie value for the desktop UI. Over TLS the cookie becomes
// SameSite=None; Secure. Over plain http both attributes are removed: a cookie jar never
// returns a Secure cookie to an http URL, and browsers reject SameSite=None without Secure.
func RelaxCookie(cookie string, secure bool) string {
	if !secure {
		for hasSecure.MatchString(cookie) {
			cookie = hasSecure.ReplaceAllString(cookie, "$1")
		}
		cookie = anySameSite.ReplaceAllString(cookie, "$1")
		return strings.TrimRight(cookie, "; ")
	}
	cookie = strictSameSite.ReplaceAllString(cookie, ";${1}SameSite=None")
	if !hasSameSite.MatchString(cookie) {
		cookie = strings.TrimRight(cookie, "; ") + "; SameSite=None"
	}
	if !hasSecure.MatchString(cookie) {
		cookie = strings.TrimRight(cookie, "; ") + "; Secure"
	}
	return cookie
}
