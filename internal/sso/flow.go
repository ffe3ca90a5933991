package sso

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/alexjbarnes/hangar-sync/internal/errors"
	"github.com/alexjbarnes/hangar-sync/internal/models"
)

const (
	// flowHTTPTimeout is the timeout for the default HTTP client used for
	// the token exchange and the verify call.
	flowHTTPTimeout = 30 * time.Second

	// maxVerifyResponseBytes caps the verify response body read.
	maxVerifyResponseBytes = 64 * 1024
)

// Config configures an authorization flow.
type Config struct {
	ClientID     string
	Scopes       []string
	AuthorizeURL string
	TokenURL     string
	VerifyURL    string

	// CallbackPort is the preferred local listener port.
	CallbackPort int

	// HTTPClient is used for the code exchange and verify call.
	// A 30-second-timeout client is created when nil.
	HTTPClient *http.Client

	// OpenBrowser hands the authorization URL to the user's agent.
	// Defaults to OpenBrowser; tests override it.
	OpenBrowser func(url string) error

	Logger *slog.Logger
}

// Flow runs one complete PKCE authorization: listener up, browser out,
// callback in, code exchanged, identity verified. All session material
// (verifier, state) is local to Authorize and dies with the call; a flow
// value can be reused but never shares state between attempts.
type Flow struct {
	cfg Config
}

// NewFlow creates a flow, filling in defaults for optional fields.
func NewFlow(cfg Config) *Flow {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: flowHTTPTimeout}
	}

	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = OpenBrowser
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Flow{cfg: cfg}
}

// Authorize runs the flow to completion and returns the new credential.
// The listener is torn down on every exit path, success or failure.
func (f *Flow) Authorize(ctx context.Context) (*models.Credential, error) {
	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		return nil, err
	}

	state, err := GenerateState()
	if err != nil {
		return nil, err
	}

	srv := NewCallbackServer(f.cfg.CallbackPort, f.cfg.Logger)

	redirectURI, err := srv.Start()
	if err != nil {
		return nil, err
	}
	defer srv.Stop()

	oc := f.oauthConfig(redirectURI)
	authURL := oc.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	f.cfg.Logger.Info("opening browser for SSO login", slog.String("url", authURL))

	if err := f.cfg.OpenBrowser(authURL); err != nil {
		// Not fatal: the URL is in the log for manual opening.
		f.cfg.Logger.Warn("could not open browser, open the URL manually", slog.Any("error", err))
	}

	rawURL, err := srv.Wait(ctx)
	if err != nil {
		return nil, err
	}

	code, err := parseCallback(rawURL, state)
	if err != nil {
		return nil, err
	}

	// The exchange sends the original verifier, never the challenge.
	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, f.cfg.HTTPClient)

	token, err := oc.Exchange(exchangeCtx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrTokenExchange, err)
	}

	verify, err := f.verifyIdentity(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	f.cfg.Logger.Info("authorized character",
		slog.Int64("character_id", verify.CharacterID),
		slog.String("character_name", verify.CharacterName),
	)

	return &models.Credential{
		CharacterID:   verify.CharacterID,
		CharacterName: verify.CharacterName,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		Expiry:        token.Expiry,
		Scopes:        strings.Fields(verify.Scopes),
		UpdatedAt:     time.Now(),
	}, nil
}

func (f *Flow) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    f.cfg.ClientID,
		RedirectURL: redirectURI,
		Scopes:      f.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.cfg.AuthorizeURL,
			TokenURL:  f.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// parseCallback extracts the authorization code from the raw callback URL.
// A provider error surfaces as ErrProviderDenied; a state mismatch is
// ErrStateMismatch and aborts before any token exchange happens.
func parseCallback(rawURL, issuedState string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing callback URL: %w", err)
	}

	query := u.Query()

	if errCode := query.Get("error"); errCode != "" {
		if desc := query.Get("error_description"); desc != "" {
			return "", fmt.Errorf("%w: %s (%s)", errors.ErrProviderDenied, errCode, desc)
		}

		return "", fmt.Errorf("%w: %s", errors.ErrProviderDenied, errCode)
	}

	got := query.Get("state")
	if subtle.ConstantTimeCompare([]byte(got), []byte(issuedState)) != 1 {
		return "", errors.ErrStateMismatch
	}

	code := query.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: callback carried no code", errors.ErrTokenExchange)
	}

	return code, nil
}

// verifyIdentity asks the provider who the token belongs to and which
// scopes were actually granted. The granted set is authoritative over the
// requested one.
func (f *Flow) verifyIdentity(ctx context.Context, accessToken string) (*models.VerifyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.VerifyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating verify request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verifying identity: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading verify response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify endpoint returned status %d", resp.StatusCode)
	}

	var verify models.VerifyResponse
	if err := json.Unmarshal(body, &verify); err != nil {
		return nil, fmt.Errorf("decoding verify response: %w", err)
	}

	if verify.CharacterID == 0 {
		return nil, fmt.Errorf("verify response carried no character id")
	}

	return &verify, nil
}
