package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jrsteele09/go-desktop-handoff/host"
	"github.com/jrsteele09/go-desktop-handoff/host/instance"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// platform is the host.Platform of the headless shell. Second instances arrive through
// the instance lock, open-url events through the shell's input.
type platform struct {
	ctx      context.Context
	quit     context.CancelFunc
	lockPath string
	uiAddr   string
	appHost  string

	mu       sync.Mutex
	lock     *instance.Lock
	openURL  func(string)
	uiServer *http.Server
	uiURL    string
}

var _ host.Platform = (*platform)(nil)

func newPlatform(ctx context.Context, lockPath, uiAddr, appHost string) *platform {
	ctx, quit := context.WithCancel(ctx)
	return &platform{ctx: ctx, quit: quit, lockPath: lockPath, uiAddr: uiAddr, appHost: appHost}
}

func (p *platform) OnOpenURL(fn func(url string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openURL = fn
}

// OpenURL delivers an OS open-url event.
func (p *platform) OpenURL(url string) {
	p.mu.Lock()
	fn := p.openURL
	p.mu.Unlock()
	if fn != nil {
		fn(url)
	}
}

func (p *platform) OnSecondInstance(fn func(args []string)) {
	p.mu.Lock()
	lock := p.lock
	p.mu.Unlock()
	if lock == nil {
		return
	}
	go func() {
		if err := lock.Serve(p.ctx, fn); err != nil {
			log.Err(err).Msg("second instance listener stopped")
		}
	}()
}

func (p *platform) Args() []string {
	return os.Args
}

func (p *platform) RequestSingleInstanceLock() bool {
	lock, err := instance.Acquire(p.lockPath, os.Args[1:])
	if err != nil {
		if !errors.Is(err, instance.ErrSecondInstance) {
			log.Err(err).Msg("failed to acquire instance lock")
		}
		return false
	}
	p.mu.Lock()
	p.lock = lock
	p.mu.Unlock()
	return true
}

func (p *platform) Quit() {
	p.quit()
}

// Done is closed once the shell should exit.
func (p *platform) Done() <-chan struct{} {
	return p.ctx.Done()
}

// SetAsDefaultProtocolClient only logs: the installer registers the scheme with the OS.
func (p *platform) SetAsDefaultProtocolClient(scheme string) error {
	log.Info().Str("scheme", scheme).Msg("deep links for this scheme are expected from the OS")
	return nil
}

// HandleProtocol serves h on a loopback address. Requests are rewritten to the app host
// so the handler sees them as custom-scheme requests.
func (p *platform) HandleProtocol(scheme string, h http.Handler) error {
	ln, err := net.Listen("tcp", p.uiAddr)
	if err != nil {
		return errors.Wrapf(err, "[platform HandleProtocol] %s", scheme)
	}
	srv := &http.Server{Handler: appHostBridge(p.appHost, h), ReadHeaderTimeout: 5 * time.Second}
	p.mu.Lock()
	p.uiServer = srv
	p.uiURL = "http://" + ln.Addr().String()
	p.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Err(err).Msg("UI server stopped")
		}
	}()
	log.Info().Str("scheme", scheme).Str("url", p.uiURL).Msg("UI bundle served")
	return nil
}

func appHostBridge(appHost string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Host = appHost
		h.ServeHTTP(w, r)
	})
}

// Close releases the lock and stops the UI server.
func (p *platform) Close() {
	p.quit()
	p.mu.Lock()
	lock, srv := p.lock, p.uiServer
	p.mu.Unlock()
	if lock != nil {
		_ = lock.Close()
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
