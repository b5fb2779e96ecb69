// Package authclient is a Go client for the auth API. It keeps the session
// cookies in a jar and collapses concurrent refreshes into one request, so a
// burst of calls with an expired access token rotates the refresh token once.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	voterdomain "election-voting/auth/internal/voter/domain"
)

// codeTokenExpired is the error code that makes Do refresh and retry once.
const codeTokenExpired = "token_expired"

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authclient: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// LoginResult is the outcome of Login. ChallengeToken is set when the account
// has 2FA and VerifyLogin must follow.
type LoginResult struct {
	Voter          *voterdomain.Profile
	ChallengeToken string
}

// Client talks to one API base URL. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	refresh singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses hc for requests. A cookie jar is added if hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a Client for baseURL (e.g. https://vote.example.org/api).
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	return c, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password string) (*voterdomain.Profile, error) {
	var out struct {
		Voter voterdomain.Profile `json:"voter"`
	}
	if err := c.send(ctx, http.MethodPost, "/auth/register", map[string]string{"email": email, "password": password}, &out); err != nil {
		return nil, err
	}
	return &out.Voter, nil
}

// Login signs in. On success without 2FA the session cookies are stored in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out struct {
		Voter             *voterdomain.Profile `json:"voter"`
		RequiresTwoFactor bool                 `json:"requires2FA"`
		ChallengeToken    string               `json:"challengeToken"`
	}
	if err := c.send(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &out); err != nil {
		return nil, err
	}
	if out.RequiresTwoFactor {
		return &LoginResult{ChallengeToken: out.ChallengeToken}, nil
	}
	return &LoginResult{Voter: out.Voter}, nil
}

// VerifyLogin completes a 2FA login with the challenge token and a current code.
func (c *Client) VerifyLogin(ctx context.Context, challengeToken, code string) (*voterdomain.Profile, error) {
	var out struct {
		Voter voterdomain.Profile `json:"voter"`
	}
	body := map[string]string{"challengeToken": challengeToken, "code": code}
	if err := c.send(ctx, http.MethodPost, "/auth/2fa/verify-login", body, &out); err != nil {
		return nil, err
	}
	return &out.Voter, nil
}

// Refresh rotates the session. Concurrent callers share one in-flight request
// and all receive its result.
func (c *Client) Refresh(ctx context.Context) error {
	ch := c.refresh.DoChan("refresh", func() (interface{}, error) {
		// Detached so one caller giving up does not fail the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
		defer cancel()
		return nil, c.send(rctx, http.MethodPost, "/auth/refresh", nil, nil)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// Logout ends the current session. It succeeds even without one.
func (c *Client) Logout(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Me returns the signed-in voter's profile.
func (c *Client) Me(ctx context.Context) (*voterdomain.Profile, error) {
	var out struct {
		Voter voterdomain.Profile `json:"voter"`
	}
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.Voter, nil
}

// Do sends an authenticated request. When the access token has expired it
// refreshes once and retries; a failed refresh is returned as is.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	err := c.send(ctx, method, path, in, out)
	if !IsCode(err, codeTokenExpired) {
		return err
	}
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	return c.send(ctx, method, path, in, out)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) timeout() time.Duration {
	if c.http.Timeout > 0 {
		return c.http.Timeout
	}
	return 15 * time.Second
}
