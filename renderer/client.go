package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/pkg/errors"
)

const (
	sessionPath = "auth/session"
	signOutPath = "auth/sign-out"
)

// Exchanger trades a ticket and its verifier for a session.
type Exchanger interface {
	Exchange(ctx context.Context, ticket, verifier string) (UserSession, error)
}

// SessionFetcher reads the current session from the backend.
type SessionFetcher interface {
	Session(ctx context.Context) (UserSession, error)
}

// Client talks to the auth backend as the desktop UI: every request carries the app
// origin, and cookies live in the http.Client's jar.
type Client struct {
	opts handoff.Options
	http *http.Client
}

var (
	_ Exchanger      = (*Client)(nil)
	_ SessionFetcher = (*Client)(nil)
)

// NewClient creates a backend client. A nil httpClient uses http.DefaultClient.
func NewClient(opts handoff.Options, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{opts: opts, http: httpClient}
}

type exchangeRequest struct {
	Ticket   string `json:"ticket"`
	Verifier string `json:"verifier"`
}

// ErrorResponse is the JSON error body the backend returns.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange posts the ticket and verifier to the exchange endpoint.
func (c *Client) Exchange(ctx context.Context, ticket, verifier string) (UserSession, error) {
	var result UserSession
	err := c.do(ctx, http.MethodPost, c.opts.ExchangePath, exchangeRequest{Ticket: ticket, Verifier: verifier}, &result)
	if err != nil {
		return UserSession{}, errors.Wrap(err, "[Client Exchange]")
	}
	return result, nil
}

// Session fetches the current session.
func (c *Client) Session(ctx context.Context) (UserSession, error) {
	var result UserSession
	if err := c.do(ctx, http.MethodGet, sessionPath, nil, &result); err != nil {
		return UserSession{}, errors.Wrap(err, "[Client Session]")
	}
	return result, nil
}

// SignOut ends the backend session.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, signOutPath, nil, nil); err != nil {
		return errors.Wrap(err, "[Client SignOut]")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(apperrors.ErrSerialization, err.Error())
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.EndpointURL(path), reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Origin", c.opts.AppOrigin())

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "transport")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return errors.Wrapf(statusError(resp.StatusCode), "%d %s: %s", resp.StatusCode, errResp.Error, errResp.ErrorDescription)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func statusError(status int) error {
	switch status {
	case http.StatusBadRequest:
		return apperrors.ErrBadRequest
	case http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case http.StatusForbidden:
		return apperrors.ErrForbidden
	case http.StatusNotFound:
		return apperrors.ErrNotFound
	}
	return apperrors.ErrInternal
}
