package host

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/jrsteele09/go-desktop-handoff/host/ipc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CookieStore is the cookie storage shared by the host and the UI's HTTP client.
type CookieStore interface {
	http.CookieJar
	// All lists every cookie held, for every URL seen so far.
	All() []*http.Cookie
	Clear() error
}

// JarCookieStore is an in-memory CookieStore built on net/http/cookiejar.
type JarCookieStore struct {
	mu   sync.Mutex
	jar  *cookiejar.Jar
	seen map[string]*url.URL
}

var _ CookieStore = (*JarCookieStore)(nil)

// NewJarCookieStore creates an empty store.
func NewJarCookieStore() *JarCookieStore {
	jar, _ := cookiejar.New(nil)
	return &JarCookieStore{jar: jar, seen: make(map[string]*url.URL)}
}

func (s *JarCookieStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := u.Scheme + "://" + u.Host
	if _, ok := s.seen[key]; !ok {
		s.seen[key] = &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	}
	s.jar.SetCookies(u, cookies)
}

func (s *JarCookieStore) Cookies(u *url.URL) []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jar.Cookies(u)
}

func (s *JarCookieStore) All() []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*http.Cookie
	for _, u := range s.seen {
		all = append(all, s.jar.Cookies(u)...)
	}
	return all
}

func (s *JarCookieStore) Clear() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return errors.Wrap(err, "[JarCookieStore Clear]")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar = jar
	s.seen = make(map[string]*url.URL)
	return nil
}

// ClearCookiesResult is the reply to the clear-cookies invocation.
type ClearCookiesResult struct {
	Success bool `json:"success"`
}

func getCookiesHandler(store CookieStore, backendURL string) ipc.Handler {
	return func(_ context.Context, _ ipc.Event, _ json.RawMessage) (any, error) {
		u, err := url.Parse(backendURL)
		if err != nil {
			log.Err(err).Str("url", backendURL).Msg("bad backend url")
			return nil, nil
		}
		for _, c := range store.Cookies(u) {
			log.Info().Str("name", c.Name).Str("url", backendURL).Msg("cookie")
		}
		return nil, nil
	}
}

func clearCookiesHandler(store CookieStore) ipc.Handler {
	return func(_ context.Context, _ ipc.Event, _ json.RawMessage) (any, error) {
		if err := store.Clear(); err != nil {
			log.Err(err).Msg("failed to clear cookies")
			return ClearCookiesResult{Success: false}, nil
		}
		leftover := store.All()
		for _, c := range leftover {
			log.Error().Str("domain", c.Domain).Str("name", c.Name).Msg("failed to clear cookie")
		}
		return ClearCookiesResult{Success: len(leftover) == 0}, nil
	}
}
