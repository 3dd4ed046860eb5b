package authflowrepo

import "time"

// FlowState is what the backend remembers between the provider redirect and the
// provider callback, keyed by the OAuth state parameter.
type FlowState struct {
	Provider           string
	CodeVerifier       string
	CallbackURL        string
	NewUserCallbackURL string
	ErrorCallbackURL   string
	CreatedAt          time.Time
	ExpiresAt          time.Time
}

// Expired reports whether the flow can no longer complete at now.
func (s *FlowState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type Repo interface {
	Upsert(state string, flow *FlowState) error
	Get(state string) (*FlowState, error)
	Delete(state string) error
	DeleteExpired(now time.Time) (int, error)
}
