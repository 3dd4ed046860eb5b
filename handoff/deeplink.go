package handoff

import (
	"encoding/json"
	"net/url"
	"regexp"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/pkce"
	"github.com/pkg/errors"
)

// Status is the outcome the provider flow reports through the deep link.
type Status string

const (
	StatusSucceed Status = "succeed"
	StatusError   Status = "error"
	StatusNewUser Status = "newUser"
)

// ParseStatus accepts only the three known statuses.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusSucceed, StatusError, StatusNewUser:
		return Status(s), true
	}
	return "", false
}

var urlSafeToken = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+=*$`)

// IsURLSafeToken reports whether s only uses the base64url alphabet (plus '.' and
// trailing padding), which covers tickets, verifiers and user ids.
func IsURLSafeToken(s string) bool {
	return urlSafeToken.MatchString(s)
}

// DeepLink builds ${Scheme}://${CallbackHost}?status&challenge[&ticket].
// An empty status or ticket is left out.
func (o Options) DeepLink(status Status, challenge, ticket string) string {
	q := url.Values{}
	if status != "" {
		q.Set(o.StatusParam, string(status))
	}
	q.Set(o.ChallengeParam, challenge)
	if ticket != "" {
		q.Set(o.TicketParam, ticket)
	}
	u := url.URL{Scheme: o.Scheme, Host: o.CallbackHost, RawQuery: q.Encode()}
	return u.String()
}

// Envelope is the IPC payload the host sends with every deep link.
type Envelope struct {
	DeepLinkURL string `json:"deepLinkURL"`
	Verifier    string `json:"verifier"`
}

// DecodeEnvelope parses and validates an IPC payload.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, errors.Wrap(apperrors.ErrEnvelopeValidation, err.Error())
	}
	if env.DeepLinkURL == "" {
		return Envelope{}, errors.Wrap(apperrors.ErrEnvelopeValidation, "deepLinkURL is empty")
	}
	if env.Verifier == "" {
		return Envelope{}, errors.Wrap(apperrors.ErrEnvelopeValidation, "verifier is empty")
	}
	return env, nil
}

// SearchParams are the desktop sign-in parameters carried through the web flow.
type SearchParams struct {
	Scheme    string
	Provider  string
	Challenge string
	Status    Status // empty when the URL carried none
}

// ParseSearchParams reads and validates scheme, provider, challenge and the optional
// status from q.
func (o Options) ParseSearchParams(q url.Values) (SearchParams, error) {
	p := SearchParams{
		Scheme:    q.Get(o.SchemeParam),
		Provider:  q.Get(o.ProviderParam),
		Challenge: q.Get(o.ChallengeParam),
	}
	if p.Scheme == "" {
		return SearchParams{}, errors.Wrap(apperrors.ErrBadRequest, "scheme is required")
	}
	if !o.IsProvider(p.Provider) {
		return SearchParams{}, errors.Wrapf(apperrors.ErrBadRequest, "unsupported provider %q", p.Provider)
	}
	if !pkce.IsChallenge(p.Challenge) {
		return SearchParams{}, errors.Wrap(apperrors.ErrBadRequest, "challenge must be 43 base64url characters")
	}
	if raw := q.Get(o.StatusParam); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			return SearchParams{}, errors.Wrapf(apperrors.ErrBadRequest, "unknown status %q", raw)
		}
		p.Status = status
	}
	return p, nil
}

// Query encodes p with the configured parameter names.
func (o Options) Query(p SearchParams) url.Values {
	q := url.Values{}
	q.Set(o.SchemeParam, p.Scheme)
	q.Set(o.ProviderParam, p.Provider)
	q.Set(o.ChallengeParam, p.Challenge)
	if p.Status != "" {
		q.Set(o.StatusParam, string(p.Status))
	}
	return q
}
