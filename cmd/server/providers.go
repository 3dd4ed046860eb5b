package main

import (
	"context"

	"github.com/jrsteele09/go-desktop-handoff/identity"
	"github.com/jrsteele09/go-desktop-handoff/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// newProviderRegistry builds the providers named in the allow-list that have client
// credentials configured.
func newProviderRegistry(ctx context.Context, c config.ProviderConfig, names []string) (*identity.Registry, error) {
	registry := identity.NewRegistry()
	for _, name := range names {
		cfg, ok := c.GetProviderConfig(name)
		if !ok {
			log.Warn().Str("provider", name).Msg("no client id configured, provider disabled")
			continue
		}

		var (
			provider identity.Provider
			err      error
		)
		switch name {
		case "github":
			provider, err = identity.NewGitHubProvider(cfg)
		case "google":
			provider, err = identity.NewGoogleProvider(ctx, cfg)
		default:
			log.Warn().Str("provider", name).Msg("no built-in support for provider")
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "[newProviderRegistry] %s", name)
		}
		registry.Register(provider)
		log.Info().Str("provider", name).Msg("provider enabled")
	}
	return registry, nil
}
