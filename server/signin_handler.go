package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-desktop-handoff/identity"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/pkce"
	"github.com/jrsteele09/go-desktop-handoff/server/authflowrepo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const stateBytes = 24

func newFlowState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[newFlowState]")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// isLocalPath accepts only same-site paths, never "//host" or absolute URLs.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

// splitScopes accepts space or comma separated scopes.
func splitScopes(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
}

// SignInHandler starts a provider sign-in: it stores the flow under a random state and
// redirects to the provider's authorize URL.
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("provider")
		provider, err := s.providers.Get(name)
		if err != nil || !s.opts.IsProvider(name) {
			s.renderError(w, r, http.StatusBadRequest, errors.Wrapf(apperrors.ErrBadRequest, "unknown provider %q", name))
			return
		}

		q := r.URL.Query()
		flow := &authflowrepo.FlowState{
			Provider:           name,
			CallbackURL:        q.Get("callbackURL"),
			NewUserCallbackURL: q.Get("newUserCallbackURL"),
			ErrorCallbackURL:   q.Get("errorCallbackURL"),
		}
		if flow.CallbackURL == "" {
			flow.CallbackURL = "/"
		}
		for _, target := range []string{flow.CallbackURL, flow.NewUserCallbackURL, flow.ErrorCallbackURL} {
			if target != "" && !isLocalPath(target) {
				s.renderError(w, r, http.StatusBadRequest, errors.Wrapf(apperrors.ErrBadRequest, "callback %q is not a local path", target))
				return
			}
		}

		state, err := s.randomState()
		if err != nil {
			s.renderError(w, r, http.StatusInternalServerError, err)
			return
		}
		verifier, err := pkce.GenerateVerifier(s.opts.VerifierLength)
		if err != nil {
			s.renderError(w, r, http.StatusInternalServerError, err)
			return
		}
		now := s.nowTime()
		flow.CodeVerifier = verifier
		flow.CreatedAt = now
		flow.ExpiresAt = now.Add(s.flowTTL)
		if err := s.repos.Flows.Upsert(state, flow); err != nil {
			s.renderError(w, r, http.StatusInternalServerError, err)
			return
		}

		log.Info().Str("provider", name).Msg("provider sign-in started")
		http.Redirect(w, r, provider.AuthCodeURL(identity.AuthRequest{
			State:       state,
			Verifier:    verifier,
			RedirectURL: s.callbackURL(name),
			LoginHint:   q.Get("loginHint"),
			Scopes:      splitScopes(q.Get("scopes")),
		}), http.StatusFound)
	}
}

// callbackURL is the redirect URI registered with the provider.
func (s *Server) callbackURL(provider string) string {
	return s.opts.EndpointURL(callbackPrefix + provider)
}
