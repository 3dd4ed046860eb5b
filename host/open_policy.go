package host

import (
	"net/url"
	"strings"
	"sync"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/jrsteele09/go-desktop-handoff/host/browser"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/pkce"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OpenPolicy decides window-open requests from the UI. Login pages go to the external
// browser with the PKCE challenge attached, other web links open externally, and the
// window itself is only opened for blob URLs.
type OpenPolicy struct {
	opts      handoff.Options
	verifiers VerifierSource
	opener    browser.Opener
	override  OpenHandler

	wg sync.WaitGroup
}

// NewOpenPolicy creates the policy. A non-nil override replaces every decision.
func NewOpenPolicy(opts handoff.Options, verifiers VerifierSource, opener browser.Opener, override OpenHandler) (*OpenPolicy, error) {
	if verifiers == nil {
		return nil, errors.New("[NewOpenPolicy] verifier source is required")
	}
	if opener == nil {
		return nil, errors.New("[NewOpenPolicy] opener is required")
	}
	return &OpenPolicy{opts: opts, verifiers: verifiers, opener: opener, override: override}, nil
}

// Decide returns the action for target. Browser launches run in the background.
func (p *OpenPolicy) Decide(target string) OpenAction {
	if p.override != nil {
		return p.override(target)
	}

	switch {
	case p.opts.FrontendURL != "" && strings.Contains(target, p.opts.FrontendURL):
		p.spawn(target, func() error { return p.openLogin(target) })
		return OpenDeny
	case strings.HasPrefix(target, "http"), strings.HasPrefix(target, "mailto:"), strings.HasPrefix(target, "tel:"):
		p.spawn(target, func() error { return p.opener.Open(target) })
		return OpenDeny
	case strings.HasPrefix(target, p.opts.SchemePrefix()), strings.HasPrefix(target, "file://"), strings.HasPrefix(target, "javascript"):
		return OpenDeny
	case strings.HasPrefix(target, "blob:"):
		return OpenAllow
	}
	return OpenDeny
}

// Wait blocks until every background launch has finished.
func (p *OpenPolicy) Wait() {
	p.wg.Wait()
}

func (p *OpenPolicy) openLogin(target string) error {
	verifier, err := p.verifiers.Get()
	if err != nil {
		return errors.Wrap(err, "verifier")
	}
	challenge := pkce.Challenge(verifier)

	u, err := url.Parse(target)
	if err != nil {
		return errors.Wrap(apperrors.ErrBadRequest, err.Error())
	}
	q := u.Query()
	provider := q.Get(p.opts.ProviderParam)
	if provider == "" {
		return apperrors.Trace(errors.Wrap(apperrors.ErrBadRequest, "no provider"), "open login", target)
	}
	if !p.opts.IsProvider(provider) {
		return apperrors.Trace(errors.Wrapf(apperrors.ErrBadRequest, "unsupported provider %q", provider), "open login", target)
	}
	q.Set(p.opts.ChallengeParam, challenge)
	q.Set(p.opts.SchemeParam, p.opts.Scheme)
	u.RawQuery = q.Encode()

	return p.opener.Open(u.String())
}

// spawn runs fn detached from the caller. Errors and panics are logged.
func (p *OpenPolicy) spawn(target string, fn func() error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("url", target).Msg("external open panicked")
			}
		}()
		if err := fn(); err != nil {
			log.Err(err).Str("url", target).Interface("trail", apperrors.Crumbs(err)).Msg("external open failed")
		}
	}()
}
