// Package handoff holds the protocol shared by the host process, the UI process and the
// backend: option defaults, deep links, the IPC envelope and query parameter rules.
package handoff

import (
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Options names every protocol constant. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	Scheme       string   // custom URI scheme, without "://"
	AppHost      string   // host the UI is served from: ${Scheme}://${AppHost}
	CallbackHost string   // host of the auth deep link: ${Scheme}://${CallbackHost}
	Providers    []string // identity provider allow-list

	ExchangePath   string // backend path of the ticket exchange endpoint
	FastTicketPath string // backend path of the fast ticket endpoint
	LoginPath      string // backend path of the desktop login page
	HandoffPath    string // web path the provider flow redirects to for desktop sign-ins
	ErrorPageURL   string // where failed handoffs are redirected

	TicketParam    string
	SchemeParam    string
	ProviderParam  string
	ChallengeParam string
	StatusParam    string

	TicketTTL       time.Duration
	SessionDuration time.Duration

	DeepLinkEvent     string
	AppMountedEvent   string
	ClearCookiesEvent string
	GetCookiesEvent   string

	VerifierLength   int
	VerifierFileName string

	FrontendURL  string // login page opened in the external browser
	BackendURL   string // base URL of the auth backend
	AppName      string
	RendererPath string // directory holding the built UI, relative to the app path
	RendererURL  string // dev server URL, loaded instead of the custom protocol when set

	RefetchSessionOnFocus bool
	LazyReadySignal       bool
	InjectBackendHeaders  bool // rewrite Origin, Referer and Cookie on every backend request
}

// DefaultOptions returns the options every component falls back to.
func DefaultOptions() Options {
	return Options{
		Scheme:       "app",
		AppHost:      "app-renderer",
		CallbackHost: "auth-callback",
		Providers:    []string{"github", "google"},

		ExchangePath:   "desktop/exchange",
		FastTicketPath: "desktop/fastTicket",
		LoginPath:      "desktop/login",
		HandoffPath:    "desktop-handoff",
		ErrorPageURL:   "http://localhost:3001/auth-error",

		TicketParam:    "ticket",
		SchemeParam:    "scheme",
		ProviderParam:  "provider",
		ChallengeParam: "challenge",
		StatusParam:    "status",

		TicketTTL:       300 * time.Second,
		SessionDuration: 7 * 24 * time.Hour,

		DeepLinkEvent:     "deep-link-received",
		AppMountedEvent:   "renderer-app-mounted",
		ClearCookiesEvent: "clear-Cookies",
		GetCookiesEvent:   "get-Cookies",

		VerifierLength:   32,
		VerifierFileName: "handoff-auth-state.json",

		FrontendURL:  "http://localhost:8080/desktop/login",
		BackendURL:   "http://localhost:8080",
		AppName:      "desktop-handoff",
		RendererPath: "out/renderer",

		RefetchSessionOnFocus: true,
		LazyReadySignal:       false,
		InjectBackendHeaders:  false,
	}
}

// Validate reports the first missing option that the protocol cannot work without.
func (o Options) Validate() error {
	switch {
	case o.Scheme == "" || strings.Contains(o.Scheme, "://"):
		return errors.New("[Options] scheme is required, without ://")
	case o.AppHost == "":
		return errors.New("[Options] app host is required")
	case o.CallbackHost == "":
		return errors.New("[Options] callback host is required")
	case len(o.Providers) == 0:
		return errors.New("[Options] at least one provider is required")
	case o.TicketTTL <= 0:
		return errors.New("[Options] ticket TTL must be positive")
	case o.SessionDuration <= 0:
		return errors.New("[Options] session duration must be positive")
	}
	return nil
}

// AppOrigin is the Origin header the UI process sends: ${Scheme}://${AppHost}.
func (o Options) AppOrigin() string {
	return o.Scheme + "://" + o.AppHost
}

// SchemePrefix is the prefix every deep link for this app starts with.
func (o Options) SchemePrefix() string {
	return o.Scheme + "://"
}

// IsProvider reports whether provider is on the allow-list.
func (o Options) IsProvider(provider string) bool {
	return slices.Contains(o.Providers, provider)
}

// EndpointURL joins the backend base URL and an endpoint path.
func (o Options) EndpointURL(path string) string {
	return strings.TrimRight(o.BackendURL, "/") + "/" + strings.TrimLeft(path, "/")
}
