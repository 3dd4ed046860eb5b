package config

import (
	"time"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
)

type HandoffConfig interface {
	GetScheme() string
	GetAppHost() string
	GetCallbackHost() string
	GetProviderNames() []string
	GetErrorPageURL() string
	GetFrontendURL() string
	GetTicketTTL() time.Duration
	GetSessionDuration() time.Duration
	GetRendererURL() string
	GetRendererPath() string
	GetRefetchSessionOnFocus() bool
	GetLazyReadySignal() bool
	GetInjectBackendHeaders() bool
}

type Handoff struct{}

var _ HandoffConfig = Handoff{}

var defaults = handoff.DefaultOptions()

func (Handoff) GetScheme() string {
	return GetEnv("HANDOFF_SCHEME", defaults.Scheme)
}

func (Handoff) GetAppHost() string {
	return GetEnv("HANDOFF_APP_HOST", defaults.AppHost)
}

func (Handoff) GetCallbackHost() string {
	return GetEnv("HANDOFF_CALLBACK_HOST", defaults.CallbackHost)
}

func (Handoff) GetProviderNames() []string {
	return GetEnvList("HANDOFF_PROVIDERS", defaults.Providers)
}

func (Handoff) GetErrorPageURL() string {
	return GetEnv("HANDOFF_ERROR_PAGE_URL", defaults.ErrorPageURL)
}

func (Handoff) GetFrontendURL() string {
	return GetEnv("HANDOFF_FRONTEND_URL", defaults.FrontendURL)
}

func (Handoff) GetTicketTTL() time.Duration {
	return GetEnvDuration("HANDOFF_TICKET_TTL", defaults.TicketTTL)
}

func (Handoff) GetSessionDuration() time.Duration {
	return GetEnvDuration("HANDOFF_SESSION_DURATION", defaults.SessionDuration)
}

// GetRendererURL is a dev server URL the desktop window loads instead of the bundled UI
func (Handoff) GetRendererURL() string {
	return GetEnv("HANDOFF_RENDERER_URL", "")
}

func (Handoff) GetRendererPath() string {
	return GetEnv("HANDOFF_RENDERER_PATH", defaults.RendererPath)
}

func (Handoff) GetRefetchSessionOnFocus() bool {
	return GetEnvBool("HANDOFF_REFETCH_ON_FOCUS", defaults.RefetchSessionOnFocus)
}

func (Handoff) GetLazyReadySignal() bool {
	return GetEnvBool("HANDOFF_LAZY_READY_SIGNAL", defaults.LazyReadySignal)
}

func (Handoff) GetInjectBackendHeaders() bool {
	return GetEnvBool("HANDOFF_INJECT_HEADERS", defaults.InjectBackendHeaders)
}

// HandoffOptions maps the configuration onto the protocol options.
func HandoffOptions(c Config) handoff.Options {
	opts := handoff.DefaultOptions()
	opts.Scheme = c.GetScheme()
	opts.AppHost = c.GetAppHost()
	opts.CallbackHost = c.GetCallbackHost()
	opts.Providers = c.GetProviderNames()
	opts.ErrorPageURL = c.GetErrorPageURL()
	opts.FrontendURL = c.GetFrontendURL()
	opts.BackendURL = c.GetBaseURL()
	opts.AppName = c.GetAppName()
	opts.TicketTTL = c.GetTicketTTL()
	opts.SessionDuration = c.GetSessionDuration()
	opts.RendererURL = c.GetRendererURL()
	opts.RendererPath = c.GetRendererPath()
	opts.RefetchSessionOnFocus = c.GetRefetchSessionOnFocus()
	opts.LazyReadySignal = c.GetLazyReadySignal()
	opts.InjectBackendHeaders = c.GetInjectBackendHeaders()
	return opts
}
