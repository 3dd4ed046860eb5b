// Package server is the auth backend of the desktop handoff: provider sign-in, the
// callback interceptor that turns a web sign-in into a deep link, and the ticket exchange.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/jrsteele09/go-desktop-handoff/identity"
	"github.com/jrsteele09/go-desktop-handoff/internal/config"
	"github.com/jrsteele09/go-desktop-handoff/server/authflowrepo"
	"github.com/jrsteele09/go-desktop-handoff/sessions"
	"github.com/jrsteele09/go-desktop-handoff/ticket"
	"github.com/jrsteele09/go-desktop-handoff/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Repos groups the storage the server needs.
type Repos struct {
	Users    users.UserRepo
	Sessions sessions.Repo
	Flows    authflowrepo.Repo
}

type Server struct {
	env            string // Environment (e.g., "DEV", "PROD")
	mux            *http.ServeMux
	routes         []string
	config         config.Config
	opts           handoff.Options
	repos          Repos
	providers      *identity.Registry
	tickets        *ticket.Codec
	cookies        *sessions.CookieSigner
	allowedOrigins config.AllowedOrigins
	flowTTL        time.Duration
	nowTime        func() time.Time
	randomState    func() (string, error)
	ticketOptions  []ticket.CodecOption
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// WithTicketOptions passes extra options to the ticket codec.
func WithTicketOptions(options ...ticket.CodecOption) Option {
	return func(s *Server) {
		s.ticketOptions = append(s.ticketOptions, options...)
	}
}

// WithStateGenerator replaces the random provider state generator (primarily for testing)
func WithStateGenerator(fn func() (string, error)) Option {
	return func(s *Server) {
		s.randomState = fn
	}
}

func New(cfg config.Config, opts handoff.Options, repos Repos, providers *identity.Registry, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Server New]")
	}
	if repos.Users == nil || repos.Sessions == nil || repos.Flows == nil {
		return nil, errors.New("[Server New] user, session and flow repos are required")
	}
	if providers == nil {
		return nil, errors.New("[Server New] provider registry is required")
	}
	for _, name := range opts.Providers {
		if _, err := providers.Get(name); err != nil {
			log.Warn().Str("provider", name).Msg("allow-listed provider is not configured")
		}
	}

	s := &Server{
		mux:            http.NewServeMux(),
		config:         cfg,
		opts:           opts,
		repos:          repos,
		providers:      providers,
		allowedOrigins: cfg.GetAllowedOrigins().With(opts.AppOrigin()),
		flowTTL:        cfg.GetFlowStateTTL(),
		nowTime:        time.Now,
		randomState:    newFlowState,
	}
	s.env = cfg.GetEnv()
	for _, opt := range options {
		opt(s)
	}

	secret := cfg.GetSecret()
	codecOptions := append([]ticket.CodecOption{ticket.WithNowTime(func() time.Time { return s.nowTime() })}, s.ticketOptions...)
	tickets, err := ticket.NewCodec(secret, codecOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[Server New] ticket codec")
	}
	cookies, err := sessions.NewCookieSigner(secret)
	if err != nil {
		return nil, errors.Wrap(err, "[Server New] cookie signer")
	}
	s.tickets = tickets
	s.cookies = cookies

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Options are the protocol options the server was built with.
func (s *Server) Options() handoff.Options {
	return s.opts
}

// PurgeExpired drops expired sessions and provider flows.
func (s *Server) PurgeExpired() {
	now := s.nowTime()
	if n, err := s.repos.Sessions.DeleteExpired(now); err != nil {
		log.Err(err).Msg("failed to purge expired sessions")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("purged expired sessions")
	}
	if n, err := s.repos.Flows.DeleteExpired(now); err != nil {
		log.Err(err).Msg("failed to purge expired sign-in flows")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("purged expired sign-in flows")
	}
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Debug().Msgf("[%-19s] %s", displayMethod, path)
}

func logError(method, path string, err error) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Error().Err(err).Msgf("[%-19s] %s", displayMethod, Red+path+ResetColor)
}

// clientIP is the first X-Forwarded-For entry, or loopback when absent.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	return "127.0.0.1"
}
