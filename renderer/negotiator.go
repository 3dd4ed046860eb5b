// Package renderer is the UI process side of the desktop handoff. It receives deep links
// from the host, checks them against the PKCE verifier and exchanges the ticket for a
// session.
package renderer

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/jrsteele09/go-desktop-handoff/host/ipc"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/pkce"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Negotiator turns deep-link envelopes into sign-ins.
type Negotiator struct {
	opts      handoff.Options
	port      *ipc.Port
	exchanger Exchanger
	state     *RendererHandoffState
}

// Option defines a function type to modify the Negotiator instance.
type Option func(*Negotiator)

// WithState replaces the process wide RendererHandoffState.
func WithState(state *RendererHandoffState) Option {
	return func(n *Negotiator) {
		n.state = state
	}
}

// NewNegotiator creates a negotiator listening on port.
func NewNegotiator(opts handoff.Options, port *ipc.Port, exchanger Exchanger, options ...Option) (*Negotiator, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "[NewNegotiator]")
	}
	if port == nil {
		return nil, errors.New("[NewNegotiator] ipc port is required")
	}
	if exchanger == nil {
		return nil, errors.New("[NewNegotiator] exchanger is required")
	}
	n := &Negotiator{
		opts:      opts,
		port:      port,
		exchanger: exchanger,
		state:     DefaultState(),
	}
	for _, opt := range options {
		opt(n)
	}
	return n, nil
}

// State is the state the negotiator runs on.
func (n *Negotiator) State() *RendererHandoffState {
	return n.state
}

// attachedPorts holds every port a deep-link listener was attached to in this process.
var attachedPorts sync.Map

// Attach subscribes to deep-link events and tells the host the UI is ready. Only the
// first Attach per state and per port subscribes; it reports whether this call did. With a lazy ready
// signal and no callbacks yet, the ready signal waits for the first registration.
func (n *Negotiator) Attach() bool {
	if _, loaded := attachedPorts.LoadOrStore(n.port, n.state); loaded {
		log.Warn().Str("port", n.port.Name()).Msg("deep link listener already attached to this port")
		return false
	}
	if !n.state.markAttached() {
		attachedPorts.Delete(n.port)
		return false
	}
	log.Info().Msg("attaching deep link listener")
	n.port.On(n.opts.DeepLinkEvent, func(_ ipc.Event, payload json.RawMessage) {
		n.state.spawn("negotiate", func() {
			n.handle(context.Background(), payload)
		})
	})

	if !n.opts.LazyReadySignal || n.state.hasCallbacks() {
		n.signalMounted()
	}
	return true
}

// OnSuccess registers fn for sign-ins of existing users.
func (n *Negotiator) OnSuccess(fn SuccessFunc) {
	n.state.OnSuccess(fn)
	n.lazyMount()
}

// OnNewUser registers fn for sign-ins that created an account.
func (n *Negotiator) OnNewUser(fn SuccessFunc) {
	n.state.OnNewUser(fn)
	n.lazyMount()
}

// OnFailure registers fn for failed handoffs.
func (n *Negotiator) OnFailure(fn FailureFunc) {
	n.state.OnFailure(fn)
	n.lazyMount()
}

// Wait blocks until every in-flight negotiation and callback has returned.
func (n *Negotiator) Wait() {
	n.state.Wait()
}

func (n *Negotiator) lazyMount() {
	if n.opts.LazyReadySignal && n.state.Attached() {
		n.signalMounted()
	}
}

func (n *Negotiator) signalMounted() {
	if !n.state.markMounted() {
		return
	}
	log.Info().Msg("sending app mounted signal")
	if err := n.port.Send(n.opts.AppMountedEvent, nil); err != nil {
		log.Err(err).Msg("failed to send app mounted signal")
	}
}

func (n *Negotiator) handle(ctx context.Context, payload json.RawMessage) {
	result, status, err := n.Negotiate(ctx, payload)
	if err != nil {
		log.Err(err).Interface("trail", apperrors.Crumbs(err)).Msg("deep link handoff failed")
		deliver(n.state, "failure", &n.state.failure, err)
		return
	}

	n.state.SetSession(&result)
	if status == handoff.StatusNewUser {
		deliver(n.state, "newUser", &n.state.newUser, result)
		return
	}
	deliver(n.state, "success", &n.state.success, result)
}

// Negotiate validates one envelope and exchanges its ticket. Nothing is sent to the
// backend unless the challenge in the link matches the verifier.
func (n *Negotiator) Negotiate(ctx context.Context, payload []byte) (UserSession, handoff.Status, error) {
	env, err := handoff.DecodeEnvelope(payload)
	if err != nil {
		return UserSession{}, "", apperrors.Trace(err, "decode envelope", nil)
	}
	trace := func(err error, msg string) error {
		return apperrors.Trace(err, msg, env.DeepLinkURL)
	}

	link, err := url.Parse(env.DeepLinkURL)
	if err != nil {
		return UserSession{}, "", trace(errors.Wrap(apperrors.ErrEnvelopeValidation, err.Error()), "parse deep link")
	}
	if link.Scheme != n.opts.Scheme {
		return UserSession{}, "", trace(errors.Wrapf(apperrors.ErrSchemeMismatch, "got %q", link.Scheme), "check scheme")
	}
	if strings.ToLower(link.Hostname()) != n.opts.CallbackHost {
		return UserSession{}, "", trace(errors.Wrapf(apperrors.ErrHostMismatch, "got %q", link.Hostname()), "check host")
	}

	q := link.Query()
	rawStatus := q.Get(n.opts.StatusParam)
	if rawStatus == "" {
		return UserSession{}, "", trace(apperrors.ErrMissingStatus, "check status")
	}
	status, ok := handoff.ParseStatus(rawStatus)
	if !ok {
		return UserSession{}, "", trace(errors.Wrapf(apperrors.ErrEnvelopeValidation, "unknown status %q", rawStatus), "check status")
	}
	if status == handoff.StatusError {
		return UserSession{}, status, trace(apperrors.ErrProviderReported, "check status")
	}

	challenge := q.Get(n.opts.ChallengeParam)
	if challenge == "" {
		return UserSession{}, status, trace(apperrors.ErrMissingChallenge, "check challenge")
	}
	if !pkce.Verify(env.Verifier, challenge) {
		return UserSession{}, status, trace(apperrors.ErrChallengeMismatch, "check challenge")
	}

	ticket := q.Get(n.opts.TicketParam)
	if ticket == "" {
		return UserSession{}, status, trace(apperrors.ErrMissingTicket, "check ticket")
	}

	result, err := n.exchanger.Exchange(ctx, ticket, env.Verifier)
	if err != nil {
		return UserSession{}, status, trace(err, "exchange ticket")
	}
	return result, status, nil
}

// LoginURL is the page the UI opens to start a sign-in with provider. The host turns it
// into an external browser launch carrying the PKCE challenge.
func (n *Negotiator) LoginURL(provider string) string {
	u, err := url.Parse(n.opts.FrontendURL)
	if err != nil {
		return n.opts.FrontendURL
	}
	q := u.Query()
	q.Set(n.opts.ProviderParam, provider)
	u.RawQuery = q.Encode()
	return u.String()
}

// ClearCookies asks the host to clear the cookie storage.
func (n *Negotiator) ClearCookies(ctx context.Context) (bool, error) {
	out, err := n.port.Invoke(ctx, n.opts.ClearCookiesEvent, nil)
	if err != nil {
		return false, errors.Wrap(err, "[Negotiator ClearCookies]")
	}
	var result struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return false, errors.Wrap(err, "[Negotiator ClearCookies] decode")
	}
	if result.Success {
		n.state.SetSession(nil)
	}
	return result.Success, nil
}
