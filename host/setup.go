package host

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/jrsteele09/go-desktop-handoff/host/browser"
	"github.com/jrsteele09/go-desktop-handoff/host/ipc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Platform is the operating system side of the desktop shell.
type Platform interface {
	OnOpenURL(fn func(url string))
	OnSecondInstance(fn func(args []string))
	Args() []string
	RequestSingleInstanceLock() bool
	Quit()
	SetAsDefaultProtocolClient(scheme string) error
	HandleProtocol(scheme string, h http.Handler) error
}

// Injection is what Setup hands back to the app: WindowInjection is called with the main
// window once it exists, WhenReady once the platform is ready to register protocols.
type Injection struct {
	WindowInjection func(w Window)
	WhenReady       func()
}

func inertInjection() Injection {
	return Injection{
		WindowInjection: func(Window) {},
		WhenReady:       func() {},
	}
}

// Host wires the handoff into the desktop shell.
type Host struct {
	opts     handoff.Options
	platform Platform
	port     *ipc.Port
	state    *HostSessionState
	gateway  *Gateway
	policy   *OpenPolicy
	cookies  CookieStore
	appPath  string
	protocol http.Handler
}

// Option defines a function type to modify the Host instance.
type Option func(*hostOptions)

type hostOptions struct {
	state        *HostSessionState
	opener       browser.Opener
	openOverride OpenHandler
	cookies      CookieStore
	appPath      string
	protocol     http.Handler
}

// WithState replaces the process wide HostSessionState.
func WithState(state *HostSessionState) Option {
	return func(o *hostOptions) {
		o.state = state
	}
}

// WithOpener replaces the system browser.
func WithOpener(opener browser.Opener) Option {
	return func(o *hostOptions) {
		o.opener = opener
	}
}

// WithOpenHandler makes h decide every window-open request.
func WithOpenHandler(h OpenHandler) Option {
	return func(o *hostOptions) {
		o.openOverride = h
	}
}

// WithCookieStore sets the cookie storage the cookie handlers act on.
func WithCookieStore(store CookieStore) Option {
	return func(o *hostOptions) {
		o.cookies = store
	}
}

// WithAppPath sets the directory RendererPath is resolved against.
func WithAppPath(path string) Option {
	return func(o *hostOptions) {
		o.appPath = path
	}
}

// WithProtocolHandler replaces the static file handler for the custom scheme.
func WithProtocolHandler(h http.Handler) Option {
	return func(o *hostOptions) {
		o.protocol = h
	}
}

// NewHost creates a host talking to the UI through port.
func NewHost(opts handoff.Options, platform Platform, port *ipc.Port, verifiers VerifierSource, options ...Option) (*Host, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "[NewHost]")
	}
	if platform == nil {
		return nil, errors.New("[NewHost] platform is required")
	}
	if port == nil {
		return nil, errors.New("[NewHost] ipc port is required")
	}

	o := hostOptions{
		state:   DefaultHostState(),
		opener:  browser.System{},
		cookies: NewJarCookieStore(),
		appPath: ".",
	}
	for _, opt := range options {
		opt(&o)
	}

	gateway, err := NewGateway(opts, o.state, verifiers)
	if err != nil {
		return nil, errors.Wrap(err, "[NewHost]")
	}
	policy, err := NewOpenPolicy(opts, verifiers, o.opener, o.openOverride)
	if err != nil {
		return nil, errors.Wrap(err, "[NewHost]")
	}

	return &Host{
		opts:     opts,
		platform: platform,
		port:     port,
		state:    o.state,
		gateway:  gateway,
		policy:   policy,
		cookies:  o.cookies,
		appPath:  o.appPath,
		protocol: o.protocol,
	}, nil
}

// State is the session state the host runs on.
func (h *Host) State() *HostSessionState {
	return h.state
}

// Gateway is the deep-link gateway.
func (h *Host) Gateway() *Gateway {
	return h.gateway
}

// OpenPolicy is the window-open policy installed on adopted windows.
func (h *Host) OpenPolicy() *OpenPolicy {
	return h.policy
}

// Setup registers every handler once. Later calls, on this or any host sharing the state,
// return injections that do nothing.
func (h *Host) Setup() Injection {
	if !h.state.Initialize() {
		log.Warn().Msg("handoff host already initialised")
		return inertInjection()
	}

	if !h.platform.RequestSingleInstanceLock() {
		log.Info().Msg("another instance is running, quitting")
		h.platform.Quit()
		return inertInjection()
	}

	if err := h.platform.SetAsDefaultProtocolClient(h.opts.Scheme); err != nil {
		log.Err(err).Str("scheme", h.opts.Scheme).Msg("failed to register protocol client")
	}

	h.platform.OnOpenURL(h.gateway.HandleOpenURL)
	h.gateway.HandleColdStart(h.platform.Args())
	h.platform.OnSecondInstance(h.gateway.HandleSecondInstance)

	h.port.RemoveAllListeners(h.opts.AppMountedEvent)
	h.port.On(h.opts.AppMountedEvent, func(e ipc.Event, _ json.RawMessage) {
		h.gateway.HandleAppMounted(e)
	})

	h.replaceHandler(h.opts.GetCookiesEvent, getCookiesHandler(h.cookies, h.opts.BackendURL))
	h.replaceHandler(h.opts.ClearCookiesEvent, clearCookiesHandler(h.cookies))

	return Injection{
		WindowInjection: h.windowInjection,
		WhenReady:       h.whenReady,
	}
}

func (h *Host) replaceHandler(channel string, handler ipc.Handler) {
	h.port.RemoveHandler(channel)
	if err := h.port.Handle(channel, handler); err != nil {
		log.Err(err).Str("channel", channel).Msg("failed to register ipc handler")
	}
}

func (h *Host) windowInjection(w Window) {
	h.state.SetWindow(w)
	w.SetWindowOpenHandler(h.policy.Decide)

	target := h.opts.AppOrigin() + "/index.html"
	if h.opts.RendererURL != "" {
		target = h.opts.RendererURL
	}
	if err := w.LoadURL(target); err != nil {
		log.Err(err).Str("url", target).Msg("failed to load UI")
	}
}

func (h *Host) whenReady() {
	handler := h.protocol
	if handler == nil {
		handler = NewStaticHandler(filepath.Join(h.appPath, h.opts.RendererPath), h.opts.AppHost)
	}
	if err := h.platform.HandleProtocol(h.opts.Scheme, handler); err != nil {
		log.Err(err).Str("scheme", h.opts.Scheme).Msg("failed to register protocol handler")
	}
}
