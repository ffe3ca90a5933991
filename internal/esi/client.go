package esi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alexjbarnes/hangar-sync/internal/errors"
	"github.com/alexjbarnes/hangar-sync/internal/models"
)

const (
	// httpClientTimeout is the timeout for the default HTTP client.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads so a misbehaving server
	// cannot consume unbounded memory.
	maxResponseBytes = 8 * 1024 * 1024

	// maxRateLimitRetries bounds how often one logical call retries after a
	// provider rate-limit response before the error escalates.
	maxRateLimitRetries = 5

	// defaultRetryAfter is used when a rate-limit response carries no
	// Retry-After header.
	defaultRetryAfter = 10 * time.Second

	// errorLimitFloor is the X-ESI-Error-Limit-Remain value below which the
	// client sleeps out the error window instead of spending the budget.
	errorLimitFloor = 10
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return stderrors.As(err, &te)
}

// credentialStore is the slice of the credential store the client needs.
type credentialStore interface {
	Get(characterID int64) (*models.Credential, error)
	IsExpired(characterID int64) (bool, error)
	UpdateTokens(characterID int64, accessToken, refreshToken string, expiry time.Time) error
	Invalidate(characterID int64) error
	List() ([]models.CredentialSummary, error)
}

// tokenRefresher runs the refresh_token grant.
type tokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenResponse, error)
}

// Client is the resilient API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pacer      *Pacer
	creds      credentialStore
	refresher  tokenRefresher
	logger     *slog.Logger

	// refreshGroup collapses concurrent refreshes for the same character
	// into one token-endpoint call.
	refreshGroup singleflight.Group

	// sleep is swappable for backoff tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL     string
	HTTPClient  *http.Client
	Pacer       *Pacer
	Credentials credentialStore
	Refresher   tokenRefresher
	Logger      *slog.Logger
}

// NewClient creates a client. HTTPClient defaults to a 30-second-timeout
// client; Pacer and Credentials are required.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: httpClientTimeout}
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		pacer:      cfg.Pacer,
		creds:      cfg.Credentials,
		refresher:  cfg.Refresher,
		logger:     cfg.Logger,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// get runs one authenticated GET against the API for the given character.
// The pipeline per dispatch: valid bearer token (refreshing proactively
// when near expiry), pacer admission, request. A 401 triggers exactly one
// refresh-and-retry; a second 401 invalidates the credential. Rate-limit
// responses back off and retry up to maxRateLimitRetries times.
func (c *Client) get(ctx context.Context, characterID int64, path string, query url.Values) ([]byte, http.Header, error) {
	token, err := c.validToken(ctx, characterID)
	if err != nil {
		return nil, nil, err
	}

	retried401 := false
	rateLimitRetries := 0

	for {
		if err := c.pacer.Admit(ctx); err != nil {
			return nil, nil, err
		}

		body, header, status, err := c.do(ctx, token, path, query)
		if err != nil {
			return nil, nil, err
		}

		c.respectErrorBudget(ctx, header)

		switch {
		case status == http.StatusOK:
			return body, header, nil

		case status == http.StatusUnauthorized && !retried401:
			retried401 = true

			token, err = c.refresh(ctx, characterID)
			if err != nil {
				return nil, nil, err
			}

		case status == http.StatusUnauthorized:
			// Refreshed and still rejected: the credential is unusable,
			// not just stale.
			if err := c.creds.Invalidate(characterID); err != nil {
				c.logger.Warn("invalidating credential failed", slog.Any("error", err))
			}

			return nil, nil, fmt.Errorf("%w: token rejected after refresh for character %d", errors.ErrUnauthenticated, characterID)

		case isRateLimitStatus(status):
			if rateLimitRetries >= maxRateLimitRetries {
				return nil, nil, fmt.Errorf("%w: gave up on %s after %d retries", errors.ErrRateLimited, path, rateLimitRetries)
			}

			rateLimitRetries++
			delay := retryAfter(header)

			c.logger.Debug("rate limited, backing off",
				slog.String("path", path),
				slog.Int("status", status),
				slog.Duration("delay", delay),
			)

			if err := c.sleep(ctx, delay); err != nil {
				return nil, nil, err
			}

		case status >= http.StatusInternalServerError:
			return nil, nil, &TransientError{Err: fmt.Errorf("GET %s returned status %d", path, status)}

		default:
			return nil, nil, fmt.Errorf("GET %s returned status %d", path, status)
		}
	}
}

func (c *Client) do(ctx context.Context, token, path string, query url.Values) ([]byte, http.Header, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures are transient by nature.
		return nil, nil, 0, &TransientError{Err: fmt.Errorf("sending request to %s: %w", path, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("reading response from %s: %w", path, err)
	}

	return body, resp.Header, resp.StatusCode, nil
}

// validToken returns an access token for the character, refreshing first
// when the stored one is inside the expiry margin.
func (c *Client) validToken(ctx context.Context, characterID int64) (string, error) {
	cred, err := c.creds.Get(characterID)
	if err != nil {
		return "", err
	}

	if cred == nil {
		return "", fmt.Errorf("%w: %d", errors.ErrUnauthenticated, characterID)
	}

	expired, err := c.creds.IsExpired(characterID)
	if err != nil {
		return "", err
	}

	if !expired {
		return cred.AccessToken, nil
	}

	return c.refresh(ctx, characterID)
}

// refresh exchanges the stored refresh token for a new pair and persists
// it. Concurrent refreshes for one character collapse into a single call.
// A failed refresh invalidates the credential: a dead refresh token cannot
// recover on its own.
func (c *Client) refresh(ctx context.Context, characterID int64) (string, error) {
	key := strconv.FormatInt(characterID, 10)

	token, err, _ := c.refreshGroup.Do(key, func() (interface{}, error) {
		cred, err := c.creds.Get(characterID)
		if err != nil {
			return nil, err
		}

		if cred == nil {
			return nil, fmt.Errorf("%w: %d", errors.ErrUnauthenticated, characterID)
		}

		resp, err := c.refresher.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			if invErr := c.creds.Invalidate(characterID); invErr != nil {
				c.logger.Warn("invalidating credential failed", slog.Any("error", invErr))
			}

			return nil, err
		}

		expiry := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		if err := c.creds.UpdateTokens(characterID, resp.AccessToken, resp.RefreshToken, expiry); err != nil {
			return nil, err
		}

		c.logger.Debug("token refreshed",
			slog.Int64("character_id", characterID),
			slog.Time("expiry", expiry),
		)

		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}

	return token.(string), nil
}

// respectErrorBudget watches the provider's error-limit headers and sleeps
// out the window when the remaining budget is nearly exhausted, instead of
// burning it down to a block.
func (c *Client) respectErrorBudget(ctx context.Context, header http.Header) {
	remain, err := strconv.Atoi(header.Get("X-ESI-Error-Limit-Remain"))
	if err != nil || remain >= errorLimitFloor {
		return
	}

	reset, err := strconv.Atoi(header.Get("X-ESI-Error-Limit-Reset"))
	if err != nil || reset <= 0 {
		return
	}

	c.logger.Warn("error budget nearly exhausted, pausing",
		slog.Int("remain", remain),
		slog.Int("reset_seconds", reset),
	)

	_ = c.sleep(ctx, time.Duration(reset)*time.Second)
}

func isRateLimitStatus(status int) bool {
	// ESI signals rate problems with 420 (error limited) as well as the
	// standard 429.
	return status == http.StatusTooManyRequests || status == 420
}

// retryAfter reads the provider-supplied delay, falling back to a
// conservative default.
func retryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return defaultRetryAfter
	}

	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}

	return time.Duration(seconds) * time.Second
}

// CharacterAssets fetches the character's complete asset list, walking
// every page the API reports.
func (c *Client) CharacterAssets(ctx context.Context, characterID int64) ([]models.Asset, error) {
	var all []models.Asset

	page := 1
	for {
		query := url.Values{"page": []string{strconv.Itoa(page)}}

		body, header, err := c.get(ctx, characterID, fmt.Sprintf("/characters/%d/assets/", characterID), query)
		if err != nil {
			return nil, fmt.Errorf("fetching assets page %d: %w", page, err)
		}

		var assets []models.Asset
		if err := json.Unmarshal(body, &assets); err != nil {
			return nil, fmt.Errorf("decoding assets page %d: %w", page, err)
		}

		all = append(all, assets...)

		pages, err := strconv.Atoi(header.Get("X-Pages"))
		if err != nil || page >= pages {
			return all, nil
		}

		page++
	}
}

// StructureInfo is the structure endpoint response.
type StructureInfo struct {
	Name          string `json:"name"`
	OwnerID       int64  `json:"owner_id"`
	SolarSystemID int64  `json:"solar_system_id"`
}

// Structure fetches a player structure's public sheet. The endpoint needs
// an authenticated character with docking access; the caller picks which.
func (c *Client) Structure(ctx context.Context, characterID, structureID int64) (*StructureInfo, error) {
	body, _, err := c.get(ctx, characterID, fmt.Sprintf("/universe/structures/%d/", structureID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching structure %d: %w", structureID, err)
	}

	var info StructureInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decoding structure %d: %w", structureID, err)
	}

	return &info, nil
}

// AnyCharacter returns a character id with a stored credential, preferring
// none in particular. Used for lookups that may ride on any authenticated
// identity, such as structure resolution.
func (c *Client) AnyCharacter() (int64, error) {
	summaries, err := c.creds.List()
	if err != nil {
		return 0, err
	}

	if len(summaries) == 0 {
		return 0, errors.ErrUnauthenticated
	}

	return summaries[0].CharacterID, nil
}
