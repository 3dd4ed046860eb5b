package server

import (
	"net/http"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/server/authflowrepo"
	"github.com/jrsteele09/go-desktop-handoff/sessions"
	"github.com/jrsteele09/go-desktop-handoff/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CallbackHandler finishes a provider sign-in: the code is exchanged, the user upserted,
// and a session cookie set before redirecting to the flow's callback URL.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("provider")
		q := r.URL.Query()
		state := q.Get("state")

		flow, err := s.repos.Flows.Get(state)
		if err != nil {
			s.renderError(w, r, http.StatusBadRequest, errors.Wrapf(apperrors.ErrBadRequest, "invalid state: %v", err))
			return
		}
		// states are single use
		if err := s.repos.Flows.Delete(state); err != nil {
			log.Err(err).Msg("failed to delete sign-in flow state")
		}
		if flow.Expired(s.nowTime()) {
			s.renderError(w, r, http.StatusBadRequest, errors.Wrap(apperrors.ErrBadRequest, "sign-in flow expired"))
			return
		}
		if flow.Provider != name {
			s.renderError(w, r, http.StatusBadRequest, errors.Wrapf(apperrors.ErrBadRequest, "state belongs to %q", flow.Provider))
			return
		}

		if providerErr := q.Get("error"); providerErr != "" {
			log.Warn().Str("provider", name).Str("error", providerErr).Str("description", q.Get("error_description")).Msg("provider reported an error")
			s.redirectFlowError(w, r, flow)
			return
		}

		provider, err := s.providers.Get(name)
		if err != nil {
			s.renderError(w, r, http.StatusBadRequest, err)
			return
		}
		profile, err := provider.Exchange(r.Context(), q.Get("code"), flow.CodeVerifier, s.callbackURL(name))
		if err != nil {
			log.Err(err).Str("provider", name).Msg("provider code exchange failed")
			s.redirectFlowError(w, r, flow)
			return
		}

		user, isNew, err := s.upsertUser(profile.Email, profile.Name, profile.Image, profile.EmailVerified)
		if err != nil {
			log.Err(err).Str("provider", name).Msg("failed to store user")
			s.redirectFlowError(w, r, flow)
			return
		}

		session, err := sessions.New(user.ID, r.UserAgent(), clientIP(r), s.opts.SessionDuration, s.nowTime())
		if err == nil {
			err = s.repos.Sessions.Create(session)
		}
		var value string
		if err == nil {
			value, err = s.cookies.Sign(session.Token)
		}
		if err != nil {
			log.Err(err).Str("user", user.ID).Msg("failed to create session")
			s.redirectFlowError(w, r, flow)
			return
		}
		http.SetCookie(w, sessions.Cookie(value, s.opts.SessionDuration))

		target := flow.CallbackURL
		if isNew && flow.NewUserCallbackURL != "" {
			target = flow.NewUserCallbackURL
		}
		log.Info().Str("provider", name).Str("user", user.ID).Bool("new_user", isNew).Msg("provider sign-in complete")
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func (s *Server) upsertUser(email, name, image string, verified bool) (*users.User, bool, error) {
	now := s.nowTime()
	user, err := s.repos.Users.GetByEmail(email)
	isNew := false
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		user = users.NewUser(email, name, now)
		isNew = true
	case err != nil:
		return nil, false, errors.Wrap(err, "[upsertUser]")
	}
	if name != "" {
		user.Name = name
	}
	if image != "" {
		user.Image = image
	}
	user.EmailVerified = user.EmailVerified || verified
	user.UpdatedAt = now
	user.LastLogin = now
	if err := s.repos.Users.Upsert(user); err != nil {
		return nil, false, errors.Wrap(err, "[upsertUser]")
	}
	return user, isNew, nil
}

func (s *Server) redirectFlowError(w http.ResponseWriter, r *http.Request, flow *authflowrepo.FlowState) {
	if flow.ErrorCallbackURL != "" {
		http.Redirect(w, r, flow.ErrorCallbackURL, http.StatusFound)
		return
	}
	s.redirectToErrorPage(w, r, http.StatusBadGateway)
}
