// Package e2e drives the full authorization and synchronization pipeline
// against mock provider and API servers: PKCE login, sealed persistence,
// token refresh on 401, paced asset fetch, and hierarchy resolution.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/hangar-sync/internal/assets"
	"github.com/alexjbarnes/hangar-sync/internal/credstore"
	"github.com/alexjbarnes/hangar-sync/internal/esi"
	"github.com/alexjbarnes/hangar-sync/internal/models"
	"github.com/alexjbarnes/hangar-sync/internal/sde"
	"github.com/alexjbarnes/hangar-sync/internal/sso"
	"github.com/alexjbarnes/hangar-sync/internal/state"
)

const characterID int64 = 42

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ssoServer mocks the provider: token endpoint for both grants plus the
// verify endpoint.
func ssoServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		var access, refresh string

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			require.Equal(t, "abc123", r.PostForm.Get("code"))
			require.NotEmpty(t, r.PostForm.Get("code_verifier"))
			access, refresh = "T1", "R1"
		case "refresh_token":
			require.Equal(t, "R1", r.PostForm.Get("refresh_token"))
			access, refresh = "T2", "R2"
		default:
			t.Errorf("unexpected grant_type %q", r.PostForm.Get("grant_type"))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  access,
			"refresh_token": refresh,
			"token_type":    "Bearer",
			"expires_in":    1200,
		})
	})
	mux.HandleFunc("/oauth/verify", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"character_id":   characterID,
			"character_name": "Test Pilot",
			"scopes":         "esi-assets.read_assets.v1 esi-universe.read_structures.v1",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

// esiServer mocks the API: one page of assets, rejecting the first access
// token once so the refresh path runs.
func esiServer(t *testing.T, rejectFirstToken bool) *httptest.Server {
	t.Helper()

	rejected := false

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("/characters/%d/assets/", characterID), func(w http.ResponseWriter, r *http.Request) {
		if rejectFirstToken && !rejected && r.Header.Get("Authorization") == "Bearer T1" {
			rejected = true
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		w.Header().Set("X-Pages", "1")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"item_id":10,"type_id":587,"quantity":1,"location_id":60003760,"location_flag":"Hangar","is_singleton":true},
			{"item_id":11,"type_id":34,"quantity":2500,"location_id":10,"location_flag":"Cargo"}
		]`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func writeExtracts(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "types.json"), []byte(
		`{"34": {"name": "Tritanium"}, "587": {"name": "Rifter"}}`,
	), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stations.yaml"), []byte(
		"60003760:\n  name: \"Jita IV - Moon 4 - Caldari Navy Assembly Plant\"\n  system_id: 30000142\n",
	), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "systems.yaml"), []byte(
		"30000142:\n  name: \"Jita\"\n  security: 0.945\n  region_id: 10000002\n",
	), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regions.yaml"), []byte(
		"10000002: \"The Forge\"\n",
	), 0o600))

	return dir
}

func authorize(t *testing.T, provider *httptest.Server) *models.Credential {
	t.Helper()

	flow := sso.NewFlow(sso.Config{
		ClientID:     "client-e2e",
		Scopes:       []string{"esi-assets.read_assets.v1"},
		AuthorizeURL: provider.URL + "/v2/oauth/authorize",
		TokenURL:     provider.URL + "/v2/oauth/token",
		VerifyURL:    provider.URL + "/oauth/verify",
		CallbackPort: 0,
		OpenBrowser: func(authURL string) error {
			go func() {
				u, err := url.Parse(authURL)
				if err != nil {
					return
				}

				q := u.Query()
				resp, err := http.Get(q.Get("redirect_uri") + "?" + url.Values{
					"code":  []string{"abc123"},
					"state": []string{q.Get("state")},
				}.Encode())
				if err == nil {
					resp.Body.Close()
				}
			}()

			return nil
		},
		Logger: discardLogger(),
	})

	cred, err := flow.Authorize(context.Background())
	require.NoError(t, err)

	return cred
}

func TestEndToEnd_LoginSyncAndResolve(t *testing.T) {
	provider := ssoServer(t)
	api := esiServer(t, true)

	dataDir := t.TempDir()

	st, err := state.Load(filepath.Join(dataDir, "state.db"))
	require.NoError(t, err)
	defer st.Close()

	secret, err := credstore.LoadOrCreateSecret(filepath.Join(dataDir, "secret.key"))
	require.NoError(t, err)

	creds, err := credstore.New(st, secret, discardLogger())
	require.NoError(t, err)

	// Login: PKCE flow against the mock provider.
	cred := authorize(t, provider)
	assert.Equal(t, characterID, cred.CharacterID)
	assert.Equal(t, "Test Pilot", cred.CharacterName)
	assert.Equal(t, "T1", cred.AccessToken)
	assert.Equal(t, "R1", cred.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(1200*time.Second), cred.Expiry, 30*time.Second)
	assert.Equal(t, []string{"esi-assets.read_assets.v1", "esi-universe.read_structures.v1"}, cred.Scopes)

	require.NoError(t, creds.Put(*cred))

	// The stored record must be sealed: no plaintext token on disk.
	raw, err := st.GetCredential(characterID)
	require.NoError(t, err)
	assert.NotEqual(t, "T1", raw.AccessToken)
	assert.NotEqual(t, "R1", raw.RefreshToken)

	// Sync: the API rejects T1 once, forcing the 401 refresh path.
	client := esi.NewClient(esi.ClientConfig{
		BaseURL:     api.URL,
		Pacer:       esi.NewPacer(150, 20),
		Credentials: creds,
		Refresher:   sso.NewRefresher("client-e2e", provider.URL+"/v2/oauth/token", nil),
		Logger:      discardLogger(),
	})

	data, err := sde.Load(writeExtracts(t), discardLogger())
	require.NoError(t, err)

	svc := assets.NewService(client, st, data, 30*time.Minute, discardLogger())

	groups, err := svc.Hangar(context.Background(), characterID, false)
	require.NoError(t, err)

	// The refreshed pair must have been persisted, still sealed.
	refreshed, err := creds.Get(characterID)
	require.NoError(t, err)
	assert.Equal(t, "T2", refreshed.AccessToken)
	assert.Equal(t, "R2", refreshed.RefreshToken)

	// Resolution: one station group, ship with cargo nested inside.
	require.Len(t, groups, 1)
	loc := groups[0].Location
	assert.Equal(t, models.LocationStation, loc.Kind)
	assert.Equal(t, "Jita IV - Moon 4 - Caldari Navy Assembly Plant", loc.Name)
	assert.Equal(t, "Jita", loc.SystemName)
	assert.Equal(t, models.SecurityHigh, loc.Security)
	assert.Equal(t, "The Forge", loc.RegionName)

	require.Len(t, groups[0].Assets, 1)
	ship := groups[0].Assets[0]
	assert.Equal(t, int64(587), ship.Asset.TypeID)
	require.Len(t, ship.Children, 1)
	assert.Equal(t, int64(34), ship.Children[0].Asset.TypeID)

	// A second read inside the freshness window serves the cache.
	again, err := svc.Hangar(context.Background(), characterID, false)
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestEndToEnd_CredentialSurvivesRestart(t *testing.T) {
	provider := ssoServer(t)

	dataDir := t.TempDir()
	statePath := filepath.Join(dataDir, "state.db")
	secretPath := filepath.Join(dataDir, "secret.key")

	// First run: login and store.
	st1, err := state.Load(statePath)
	require.NoError(t, err)

	secret1, err := credstore.LoadOrCreateSecret(secretPath)
	require.NoError(t, err)

	creds1, err := credstore.New(st1, secret1, discardLogger())
	require.NoError(t, err)

	require.NoError(t, creds1.Put(*authorize(t, provider)))
	require.NoError(t, st1.Close())

	// Second run: fresh store over the same files opens the tokens back.
	st2, err := state.Load(statePath)
	require.NoError(t, err)
	defer st2.Close()

	secret2, err := credstore.LoadOrCreateSecret(secretPath)
	require.NoError(t, err)
	assert.Equal(t, secret1, secret2)

	creds2, err := credstore.New(st2, secret2, discardLogger())
	require.NoError(t, err)

	cred, err := creds2.Get(characterID)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "T1", cred.AccessToken)
	assert.Equal(t, "R1", cred.RefreshToken)

	selected, err := creds2.Selected()
	require.NoError(t, err)
	assert.Equal(t, characterID, selected)
}
