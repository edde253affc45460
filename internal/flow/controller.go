package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"authkit/internal/config"
	"authkit/pkg/logging"
	"authkit/pkg/oauth"

	"github.com/google/uuid"
)

// AuthenticatePath is the issuer's token endpoint path, relative to the
// API base URL. Code exchange posts JSON; refresh posts a form body.
const AuthenticatePath = "/user_management/authenticate"

// DefaultHTTPTimeout is the default timeout for token endpoint requests.
const DefaultHTTPTimeout = 30 * time.Second

// Doer is the injected HTTP capability. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UserAgent is the interactive browser collaborator. Authorize presents
// authURL to the user and blocks until the issuer redirects to the
// callback, returning the full callback URL. Implementations must complete
// exactly once per invocation; cancelling ctx aborts the wait.
type UserAgent interface {
	Authorize(ctx context.Context, authURL, callbackScheme string) (string, error)
}

// AuthResult is the outcome of one successful authorization attempt.
type AuthResult struct {
	Tokens         oauth.Tokens
	User           oauth.UserInfo
	OrganizationID string
}

// attemptState tracks one authorization attempt through its lifecycle.
type attemptState int

const (
	stateIdle attemptState = iota
	stateAwaitingUserAgent
	stateExchangingCode
)

// Controller runs exactly one authorization attempt end to end. The PKCE
// verifier is confined to the attempt and discarded when it completes, so
// two attempts can never cross-wire verifiers: a second SignIn while one
// is in flight is rejected with oauth.ErrFlowInProgress.
type Controller struct {
	cfg        *config.Config
	userAgent  UserAgent
	httpClient Doer

	mu        sync.Mutex
	state     attemptState
	attemptID string
	cancel    context.CancelCauseFunc
}

// Option configures the Controller.
type Option func(*Controller)

// WithHTTPClient sets a custom HTTP capability.
func WithHTTPClient(d Doer) Option {
	return func(c *Controller) {
		c.httpClient = d
	}
}

// NewController creates a flow controller for the given configuration and
// user-agent collaborator.
func NewController(cfg *config.Config, userAgent UserAgent, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignIn runs one authorization attempt: PKCE generation, the interactive
// authorization round-trip, callback parsing, and the code exchange.
//
// User cancellation surfaces as oauth.ErrUserCancelled; issuer-reported
// authorization errors as *oauth.NetworkError; a callback without a code
// as *oauth.InvalidResponseError.
func (c *Controller) SignIn(ctx context.Context) (*AuthResult, error) {
	pair, state, actx, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.finish()

	authURL, err := oauth.BuildAuthorizationURL(c.cfg.APIBaseURL, c.cfg.ClientID, c.cfg.RedirectURI, pair.Challenge, state)
	if err != nil {
		return nil, err
	}

	logging.Debug("Flow", "Starting authorization attempt id=%s", c.currentAttemptID())

	callbackURL, err := c.userAgent.Authorize(actx, authURL, c.cfg.CallbackScheme)
	if err != nil {
		if cancelled(actx, err) {
			logging.Info("Flow", "Authorization attempt cancelled by user")
			return nil, oauth.ErrUserCancelled
		}
		return nil, &oauth.NetworkError{Op: "authorize", Err: err}
	}

	code, err := parseCallback(callbackURL, state)
	if err != nil {
		return nil, err
	}

	c.setState(stateExchangingCode)
	return c.exchangeCode(actx, code, pair.Verifier)
}

// Refresh exchanges a refresh token for a brand-new token set. Refresh
// tokens rotate: the returned set fully replaces the prior one.
func (c *Controller) Refresh(ctx context.Context, refreshToken string) (*oauth.Tokens, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &oauth.TokenRefreshError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &oauth.TokenRefreshError{Err: &oauth.NetworkError{Op: "refresh", Err: err}}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &oauth.TokenRefreshError{Err: &oauth.NetworkError{Op: "refresh", Err: err}}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Debug("Flow", "Refresh rejected with status %d", resp.StatusCode)
		return nil, &oauth.TokenRefreshError{
			Err: &oauth.NetworkError{Op: "refresh", StatusCode: resp.StatusCode, Body: string(body)},
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &oauth.TokenRefreshError{Err: fmt.Errorf("undecodable refresh response: %w", err)}
	}
	if tr.AccessToken == "" {
		return nil, &oauth.TokenRefreshError{
			Err: &oauth.InvalidResponseError{Op: "refresh", Body: string(body), Err: errors.New("missing access_token")},
		}
	}

	tokens := oauth.NewTokens(tr.AccessToken, tr.RefreshToken)
	logging.Debug("Flow", "Refreshed tokens, new expiry %s", tokens.ExpiresAt.Format(time.RFC3339))
	return &tokens, nil
}

// Cancel aborts an in-flight attempt; its pending SignIn fails with
// oauth.ErrUserCancelled. Idempotent when no attempt is active.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel(oauth.ErrUserCancelled)
	}
}

// begin transitions idle -> awaitingUserAgent and pins the attempt's PKCE
// pair and cancellation scope.
func (c *Controller) begin(ctx context.Context) (*oauth.PKCEPair, string, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateIdle {
		return nil, "", nil, oauth.ErrFlowInProgress
	}

	pair, err := oauth.GeneratePKCE()
	if err != nil {
		return nil, "", nil, err
	}
	state, err := oauth.GenerateState()
	if err != nil {
		return nil, "", nil, err
	}

	actx, cancel := context.WithCancelCause(ctx)
	c.state = stateAwaitingUserAgent
	c.attemptID = uuid.NewString()
	c.cancel = cancel

	return pair, state, actx, nil
}

// finish discards the attempt's continuation state, whatever the outcome.
func (c *Controller) finish() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel(nil)
	}
	c.state = stateIdle
	c.attemptID = ""
	c.cancel = nil
	c.mu.Unlock()
}

func (c *Controller) setState(s attemptState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) currentAttemptID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptID
}

// cancelled reports whether err resulted from Cancel() or a user-initiated
// abort, as opposed to a genuine user-agent failure.
func cancelled(ctx context.Context, err error) bool {
	if errors.Is(err, oauth.ErrUserCancelled) {
		return true
	}
	return errors.Is(context.Cause(ctx), oauth.ErrUserCancelled)
}

// parseCallback extracts the authorization code from the callback URL.
// An issuer-reported error fails the attempt; a mismatched or missing code
// is an invalid response.
func parseCallback(callbackURL, wantState string) (string, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return "", &oauth.InvalidResponseError{Op: "callback", Err: err}
	}

	query := parsed.Query()
	if errCode := query.Get("error"); errCode != "" {
		desc := query.Get("error_description")
		return "", &oauth.NetworkError{
			Op:  "authorize",
			Err: fmt.Errorf("authorization failed: %s: %s", errCode, desc),
		}
	}

	code := query.Get("code")
	if code == "" {
		return "", &oauth.InvalidResponseError{Op: "callback", Body: callbackURL, Err: errors.New("missing authorization code")}
	}

	// The authorization request always carries a state, so the callback
	// must echo it back. A missing echo is treated the same as a mismatch.
	if wantState != "" {
		if got := query.Get("state"); got != wantState {
			return "", &oauth.InvalidResponseError{Op: "callback", Err: errors.New("state missing or mismatched")}
		}
	}

	return code, nil
}

// tokenResponse is the issuer's token endpoint response shape, shared by
// code exchange and refresh.
type tokenResponse struct {
	AccessToken    string       `json:"access_token"`
	RefreshToken   string       `json:"refresh_token"`
	User           userResponse `json:"user"`
	OrganizationID string       `json:"organization_id"`
}

// userResponse is the user object embedded in the code exchange response.
// UserInfo comes from here on sign-in, not from a separate ID-token claim
// set.
type userResponse struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

// exchangeCode swaps the authorization code plus PKCE verifier for tokens.
func (c *Controller) exchangeCode(ctx context.Context, code, verifier string) (*AuthResult, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     c.cfg.ClientID,
		"code":          code,
		"code_verifier": verifier,
	})
	if err != nil {
		return nil, &oauth.InvalidResponseError{Op: "exchange", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, &oauth.NetworkError{Op: "exchange", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &oauth.NetworkError{Op: "exchange", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &oauth.NetworkError{Op: "exchange", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Debug("Flow", "Code exchange rejected with status %d", resp.StatusCode)
		return nil, &oauth.NetworkError{Op: "exchange", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &oauth.InvalidResponseError{Op: "exchange", Body: string(body), Err: err}
	}
	if tr.AccessToken == "" {
		return nil, &oauth.InvalidResponseError{Op: "exchange", Body: string(body), Err: errors.New("missing access_token")}
	}

	result := &AuthResult{
		Tokens: oauth.NewTokens(tr.AccessToken, tr.RefreshToken),
		User: oauth.UserInfo{
			Sub:           tr.User.ID,
			Email:         tr.User.Email,
			EmailVerified: tr.User.EmailVerified,
			GivenName:     tr.User.FirstName,
			FamilyName:    tr.User.LastName,
			Picture:       tr.User.ProfilePictureURL,
			OrgID:         tr.OrganizationID,
		},
		OrganizationID: tr.OrganizationID,
	}

	logging.Info("Flow", "Authorization attempt completed for user=%s", result.User.Sub)
	return result, nil
}

func (c *Controller) tokenEndpoint() string {
	return strings.TrimSuffix(c.cfg.APIBaseURL, "/") + AuthenticatePath
}
