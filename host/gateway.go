package host

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// VerifierSource supplies the current PKCE verifier.
type VerifierSource interface {
	Get() (string, error)
}

// Gateway receives deep links from the OS and forwards them to the UI process, buffering
// the newest one while no window can take it.
type Gateway struct {
	opts      handoff.Options
	state     *HostSessionState
	verifiers VerifierSource
}

// NewGateway creates a gateway over state.
func NewGateway(opts handoff.Options, state *HostSessionState, verifiers VerifierSource) (*Gateway, error) {
	if state == nil {
		return nil, errors.New("[NewGateway] state is required")
	}
	if verifiers == nil {
		return nil, errors.New("[NewGateway] verifier source is required")
	}
	return &Gateway{opts: opts, state: state, verifiers: verifiers}, nil
}

// HandleOpenURL handles an OS open-url event. Links for other hosts are ignored.
func (g *Gateway) HandleOpenURL(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring malformed deep link")
		return
	}
	if u.Hostname() != g.opts.CallbackHost {
		log.Debug().Str("host", u.Hostname()).Msg("ignoring deep link for another host")
		return
	}
	g.Dispatch(raw)
}

// HandleColdStart buffers the deep link the process was launched with, if any.
func (g *Gateway) HandleColdStart(args []string) {
	if link, ok := g.findDeepLink(args); ok {
		log.Info().Msg("cold start deep link buffered")
		g.state.SetPending(link)
	}
}

// HandleSecondInstance dispatches the deep link another launch relayed to us.
func (g *Gateway) HandleSecondInstance(args []string) {
	if link, ok := g.findDeepLink(args); ok {
		g.Dispatch(link)
	}
}

// Dispatch sends the link to a ready window, or buffers it.
func (g *Gateway) Dispatch(deepLinkURL string) {
	w := g.state.Window()
	if w == nil || w.IsLoading() {
		g.state.SetPending(deepLinkURL)
		return
	}

	popUp(w)
	if err := g.send(w, deepLinkURL); err != nil {
		log.Err(err).Msg("failed to deliver deep link, buffering it")
		g.state.SetPending(deepLinkURL)
		return
	}
	g.state.ClearPending()
}

// HandleAppMounted flushes the buffered link to the UI that just mounted.
func (g *Gateway) HandleAppMounted(sender Sender) {
	link, ok := g.state.TakePending()
	if !ok {
		return
	}
	log.Info().Msg("UI mounted, sending buffered deep link")
	if err := g.send(sender, link); err != nil {
		log.Err(err).Msg("failed to deliver buffered deep link")
		g.state.SetPending(link)
	}
}

func (g *Gateway) send(to Sender, deepLinkURL string) error {
	verifier, err := g.verifiers.Get()
	if err != nil {
		return errors.Wrap(err, "verifier")
	}
	return to.Send(g.opts.DeepLinkEvent, handoff.Envelope{
		DeepLinkURL: deepLinkURL,
		Verifier:    verifier,
	})
}

func (g *Gateway) findDeepLink(args []string) (string, bool) {
	prefix := g.opts.SchemePrefix()
	for _, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			return arg, true
		}
	}
	return "", false
}
