package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/oauth2"
)

// refreshLeeway is how long before expiry a cached token is considered stale.
const refreshLeeway = 2 * time.Minute

// Credentials configure the refresh-token exchange.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
}

// Validate reports which credentials are missing, by environment variable name.
func (c Credentials) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if c.RefreshToken == "" {
		missing = append(missing, "REFRESH_TOKEN")
	}
	if c.TokenURL == "" {
		missing = append(missing, "AUTHENTICATION_ENDPOINT")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// TokenProvider exchanges the refresh token for bearer tokens.
// It implements [oauth2.TokenSource].
//
// Tokens are reused until shortly before they expire. When a cache path is
// set, the latest token is persisted so that a rotated refresh token
// survives between runs.
type TokenProvider struct {
	mu sync.Mutex

	config       *oauth2.Config
	httpClient   *http.Client
	seed         string
	refreshToken string
	token        *oauth2.Token

	fresh     bool
	cachePath string
	logger    Logger
	now       func() time.Time
}

// cachedToken is the on-disk form of the token cache.
type cachedToken struct {
	// IssuedFor is the configured refresh token the chain started from.
	// A different configured token invalidates the cache.
	IssuedFor string        `json:"issued_for"`
	Token     *oauth2.Token `json:"token"`
}

// TokenOption configures a TokenProvider.
type TokenOption func(*TokenProvider)

// WithTokenHTTPClient sets the HTTP client used for the token endpoint.
func WithTokenHTTPClient(hc *http.Client) TokenOption {
	return func(p *TokenProvider) {
		p.httpClient = hc
	}
}

// WithTokenCache persists tokens at path. An empty path disables the cache.
func WithTokenCache(path string) TokenOption {
	return func(p *TokenProvider) {
		p.cachePath = path
	}
}

// WithFreshTokens makes every call perform a new token exchange.
func WithFreshTokens(fresh bool) TokenOption {
	return func(p *TokenProvider) {
		p.fresh = fresh
	}
}

// WithTokenLogger sets the logger for token refresh events.
func WithTokenLogger(logger Logger) TokenOption {
	return func(p *TokenProvider) {
		p.logger = logger
	}
}

// NewTokenProvider validates creds and returns a provider for them.
func NewTokenProvider(creds Credentials, opts ...TokenOption) (*TokenProvider, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	p := &TokenProvider{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  creds.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		seed:         creds.RefreshToken,
		refreshToken: creds.RefreshToken,
		logger:       nopLogger{},
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.httpClient == nil {
		p.httpClient = NewHTTPClient(false)
	}

	if p.cachePath != "" && !p.fresh {
		expanded, err := homedir.Expand(p.cachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand token cache path: %w", err)
		}
		p.cachePath = expanded

		if err := p.load(); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("ignoring token cache", "path", p.cachePath, "error", err)
		}
	}

	return p, nil
}

// AccessToken returns a bearer token string.
func (p *TokenProvider) AccessToken() (string, error) {
	tok, err := p.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Token returns a valid token, refreshing it when needed.
func (p *TokenProvider) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.fresh && !p.shouldRefresh(p.now()) {
		return p.token, nil
	}

	tok, err := p.exchange()
	if err != nil {
		return nil, err
	}

	p.token = tok
	if tok.RefreshToken != "" {
		p.refreshToken = tok.RefreshToken
	}

	p.logger.Debug("obtained access token", "expiry", tok.Expiry.UTC().Format(time.RFC3339))

	if p.cachePath != "" && !p.fresh {
		if err := p.save(); err != nil {
			p.logger.Warn("failed to persist token cache", "path", p.cachePath, "error", err)
		}
	}

	return tok, nil
}

// shouldRefresh checks if the held token needs replacing.
func (p *TokenProvider) shouldRefresh(now time.Time) bool {
	if p.token == nil || p.token.AccessToken == "" {
		return true
	}
	if p.token.Expiry.IsZero() {
		return false
	}
	return now.Add(refreshLeeway).After(p.token.Expiry)
}

// exchange performs a single refresh_token grant.
func (p *TokenProvider) exchange() (*oauth2.Token, error) {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, p.httpClient)

	tok, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: p.refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	if exp, ok := expiresAt(tok); ok {
		tok.Expiry = exp
	}

	return tok, nil
}

// expiresAt reads Strava's absolute expires_at field from the token response.
func expiresAt(tok *oauth2.Token) (time.Time, bool) {
	switch v := tok.Extra("expires_at").(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case string:
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(ts, 0), true
	default:
		return time.Time{}, false
	}
}

// load reads the token cache.
func (p *TokenProvider) load() error {
	data, err := os.ReadFile(p.cachePath)
	if err != nil {
		return err
	}

	var cached cachedToken
	if err := json.Unmarshal(data, &cached); err != nil {
		p.logger.Warn("ignoring unreadable token cache", "path", p.cachePath, "error", err)
		return nil
	}

	if cached.Token == nil || cached.IssuedFor != p.seed {
		p.logger.Debug("ignoring token cache issued for another refresh token", "path", p.cachePath)
		return nil
	}

	if cached.Token.RefreshToken != "" {
		p.refreshToken = cached.Token.RefreshToken
	}
	p.token = cached.Token

	p.logger.Debug("loaded token cache", "path", p.cachePath, "expiry", cached.Token.Expiry)
	return nil
}

// save writes the token cache with owner-only permissions.
func (p *TokenProvider) save() error {
	if err := os.MkdirAll(filepath.Dir(p.cachePath), 0700); err != nil {
		return fmt.Errorf("failed to create token cache directory: %w", err)
	}

	data, err := json.MarshalIndent(cachedToken{IssuedFor: p.seed, Token: p.token}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}

	// Write to a sibling temp file and rename, so a crash never leaves a
	// truncated cache behind.
	tmp, err := os.CreateTemp(filepath.Dir(p.cachePath), ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create token cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.cachePath); err != nil {
		return fmt.Errorf("failed to replace token cache: %w", err)
	}

	return nil
}
