package sso

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/alexjbarnes/hangar-sync/internal/errors"
	"github.com/alexjbarnes/hangar-sync/internal/models"
)

// Refresher exchanges a refresh token for a new access/refresh pair at the
// provider's token endpoint.
type Refresher struct {
	clientID   string
	tokenURL   string
	httpClient *http.Client
}

// NewRefresher creates a refresher. A default 30-second-timeout client is
// used when httpClient is nil.
func NewRefresher(clientID, tokenURL string, httpClient *http.Client) *Refresher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: flowHTTPTimeout}
	}

	return &Refresher{
		clientID:   clientID,
		tokenURL:   tokenURL,
		httpClient: httpClient,
	}
}

// Refresh runs the refresh_token grant. Providers may rotate the refresh
// token; when the response omits one, the input token is carried forward.
// Failure surfaces as errors.ErrTokenRefresh so callers can invalidate the
// credential.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*models.TokenResponse, error) {
	oc := &oauth2.Config{
		ClientID: r.clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  r.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	token, err := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrTokenRefresh, err)
	}

	newRefresh := token.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	expiresIn := int(time.Until(token.Expiry).Seconds())

	return &models.TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: newRefresh,
		ExpiresIn:    expiresIn,
		TokenType:    token.TokenType,
	}, nil
}
