package config

import (
	"strings"

	"github.com/jrsteele09/go-desktop-handoff/identity"
)

type ProviderConfig interface {
	GetProviderConfig(name string) (identity.Config, bool)
}

type Providers struct{}

var _ ProviderConfig = Providers{}

// GetProviderConfig reads <NAME>_CLIENT_ID, <NAME>_CLIENT_SECRET and <NAME>_SCOPES. A
// provider without a client id is not configured.
func (Providers) GetProviderConfig(name string) (identity.Config, bool) {
	prefix := strings.ToUpper(name) + "_"
	clientID := GetEnv(prefix+"CLIENT_ID", "")
	if clientID == "" {
		return identity.Config{}, false
	}
	return identity.Config{
		ClientID:     clientID,
		ClientSecret: GetEnv(prefix+"CLIENT_SECRET", ""),
		Scopes:       GetEnvList(prefix+"SCOPES", nil),
	}, true
}
