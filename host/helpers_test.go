package host_test

import (
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/jrsteele09/go-desktop-handoff/host/ipc"
	"github.com/stretchr/testify/require"
)

const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testDeepLink  = "app://auth-callback?status=succeed&challenge=" + testChallenge + "&ticket=abc.def"
)

type staticVerifiers struct {
	verifier string
	err      error
}

func (s staticVerifiers) Get() (string, error) {
	return s.verifier, s.err
}

type recordingSender struct {
	mu     sync.Mutex
	events []string
	sent   []handoff.Envelope
}

func (r *recordingSender) Send(event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if env, ok := payload.(handoff.Envelope); ok {
		r.sent = append(r.sent, env)
	}
	return nil
}

func (r *recordingSender) envelopes() []handoff.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]handoff.Envelope(nil), r.sent...)
}

// envelopeCollector gathers deep-link events arriving at the UI end of a port pair.
type envelopeCollector struct {
	mu   sync.Mutex
	envs []handoff.Envelope
}

func collectEnvelopes(t *testing.T, port *ipc.Port, event string) *envelopeCollector {
	t.Helper()
	c := &envelopeCollector{}
	port.On(event, func(_ ipc.Event, payload json.RawMessage) {
		env, err := handoff.DecodeEnvelope(payload)
		require.NoError(t, err)
		c.mu.Lock()
		defer c.mu.Unlock()
		c.envs = append(c.envs, env)
	})
	return c
}

func (c *envelopeCollector) all() []handoff.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]handoff.Envelope(nil), c.envs...)
}

type fakePlatform struct {
	mu               sync.Mutex
	args             []string
	primary          bool
	quit             bool
	defaultClients   []string
	openURL          func(string)
	secondInstance   func([]string)
	protocolHandlers map[string]http.Handler
}

func newFakePlatform(args ...string) *fakePlatform {
	return &fakePlatform{args: args, primary: true, protocolHandlers: map[string]http.Handler{}}
}

func (p *fakePlatform) OnOpenURL(fn func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openURL = fn
}

func (p *fakePlatform) OnSecondInstance(fn func([]string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secondInstance = fn
}

func (p *fakePlatform) Args() []string {
	return p.args
}

func (p *fakePlatform) RequestSingleInstanceLock() bool {
	return p.primary
}

func (p *fakePlatform) Quit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quit = true
}

func (p *fakePlatform) SetAsDefaultProtocolClient(scheme string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultClients = append(p.defaultClients, scheme)
	return nil
}

func (p *fakePlatform) HandleProtocol(scheme string, h http.Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.protocolHandlers[scheme] = h
	return nil
}
