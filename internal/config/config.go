package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for hangar-sync.
type Config struct {
	// EVE SSO application client ID. Required for every command that talks
	// to the API. hangar-sync is a public client: there is no secret.
	ClientID string `env:"EVE_CLIENT_ID"`

	// Space-separated scopes requested at login. The granted set recorded on
	// the credential comes from the verify endpoint, not from this value.
	Scopes string `env:"EVE_SCOPES" envDefault:"esi-assets.read_assets.v1 esi-universe.read_structures.v1"`

	// Preferred port for the local callback listener. When the port is taken,
	// the listener scans upward a bounded number of ports.
	CallbackPort int `env:"CALLBACK_PORT" envDefault:"8701"`

	// SSO endpoints. Overridable for tests against a mock provider.
	AuthorizeURL string `env:"SSO_AUTHORIZE_URL" envDefault:"https://login.eveonline.com/v2/oauth/authorize"`
	TokenURL     string `env:"SSO_TOKEN_URL" envDefault:"https://login.eveonline.com/v2/oauth/token"`
	VerifyURL    string `env:"SSO_VERIFY_URL" envDefault:"https://login.eveonline.com/oauth/verify"`

	// ESI endpoint and request pacing. RateLimit is the sustained
	// requests-per-second budget; RateBurst is the short-burst allowance.
	ESIBaseURL string `env:"ESI_BASE_URL" envDefault:"https://esi.evetech.net/latest"`
	RateLimit  int    `env:"ESI_RATE_LIMIT" envDefault:"150"`
	RateBurst  int    `env:"ESI_RATE_BURST" envDefault:"20"`

	// CacheMaxAge is how long a synchronized asset set is served from the
	// local cache before the next read goes back to the API.
	CacheMaxAge time.Duration `env:"ASSET_CACHE_MAX_AGE" envDefault:"30m"`

	// DataDir holds the state database, the encryption secret, and by
	// default the static data extracts. Defaults to ~/.hangar-sync.
	DataDir string `env:"DATA_DIR"`

	// SDEDir holds the static data extracts (types.json, stations.yaml,
	// systems.yaml, regions.yaml). Defaults to <DataDir>/sde.
	SDEDir string `env:"SDE_DIR"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has overly
// permissive permissions. On Unix systems, group or world readable files
// risk exposing the client ID and endpoints to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}

		cfg.DataDir = filepath.Join(home, ".hangar-sync")
	}

	absDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir to absolute path: %w", err)
	}

	cfg.DataDir = absDir

	if cfg.SDEDir == "" {
		cfg.SDEDir = filepath.Join(cfg.DataDir, "sde")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.CallbackPort <= 0 || c.CallbackPort > 65535 {
		return fmt.Errorf("CALLBACK_PORT must be a valid port, got %d", c.CallbackPort)
	}

	if c.RateLimit <= 0 {
		return fmt.Errorf("ESI_RATE_LIMIT must be positive, got %d", c.RateLimit)
	}

	if c.RateBurst <= 0 {
		return fmt.Errorf("ESI_RATE_BURST must be positive, got %d", c.RateBurst)
	}

	if c.CacheMaxAge <= 0 {
		return fmt.Errorf("ASSET_CACHE_MAX_AGE must be positive, got %s", c.CacheMaxAge)
	}

	return nil
}

// RequireClientID returns an error when EVE_CLIENT_ID is unset. Called by
// commands that reach the SSO or the API; offline commands skip it.
func (c *Config) RequireClientID() error {
	if c.ClientID == "" {
		return fmt.Errorf("EVE_CLIENT_ID is required")
	}

	return nil
}

// ScopeList returns the requested scopes split into a slice.
func (c *Config) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

// StatePath returns the path of the state database.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.db")
}

// SecretPath returns the path of the locally generated encryption secret.
func (c *Config) SecretPath() string {
	return filepath.Join(c.DataDir, "secret.key")
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
