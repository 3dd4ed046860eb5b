package config

import "time"

type SecurityConfig interface {
	GetSecret() []byte
	GetFlowStateTTL() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSecret is the server secret behind tickets and session cookies. Empty when unset;
// the server refuses to start without it.
func (Security) GetSecret() []byte {
	return []byte(GetEnv("HANDOFF_SECRET", ""))
}

// GetFlowStateTTL is how long a provider sign-in may take
func (Security) GetFlowStateTTL() time.Duration {
	return GetEnvDuration("FLOW_STATE_TTL", 10*time.Minute)
}
