package strava

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// tokenServer is a fake OAuth token endpoint that records the submitted forms.
type tokenServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []map[string]string
	respond  func(w http.ResponseWriter, call int)
}

func newTokenServer(t *testing.T, respond func(w http.ResponseWriter, call int)) *tokenServer {
	t.Helper()

	ts := &tokenServer{respond: respond}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}

		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}

		ts.mu.Lock()
		ts.requests = append(ts.requests, form)
		call := len(ts.requests)
		ts.mu.Unlock()

		ts.respond(w, call)
	}))
	t.Cleanup(ts.Close)

	return ts
}

func (ts *tokenServer) calls() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.requests)
}

func (ts *tokenServer) form(i int) map[string]string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.requests[i]
}

// stravaToken writes a token response shaped like Strava's.
func stravaToken(access, refresh string, expiresAt time.Time) func(w http.ResponseWriter, call int) {
	return func(w http.ResponseWriter, call int) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"token_type":    "Bearer",
			"access_token":  access,
			"refresh_token": refresh,
			"expires_at":    expiresAt.Unix(),
			"expires_in":    int(time.Until(expiresAt).Seconds()),
		})
	}
}

func testCredentials(tokenURL string) Credentials {
	return Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-1",
		TokenURL:     tokenURL,
	}
}

func TestTokenProvider_AccessToken_ReturnsServerToken(t *testing.T) {
	// Arrange
	srv := newTokenServer(t, stravaToken("abc123", "refresh-2", time.Now().Add(6*time.Hour)))
	provider, err := NewTokenProvider(testCredentials(srv.URL))
	if err != nil {
		t.Fatalf("NewTokenProvider() error = %v", err)
	}

	// Act
	token, err := provider.AccessToken()

	// Assert
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if token != "abc123" {
		t.Errorf("Expected token abc123, got %s", token)
	}

	form := srv.form(0)
	want := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": "refresh-1",
		"client_id":     "client-id",
		"client_secret": "client-secret",
	}
	for k, v := range want {
		if form[k] != v {
			t.Errorf("Expected form %s=%q, got %q", k, v, form[k])
		}
	}
}

func TestTokenProvider_AccessToken_MissingField(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, call int) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer","expires_in":21600}`))
	})
	provider, err := NewTokenProvider(testCredentials(srv.URL))
	if err != nil {
		t.Fatalf("NewTokenProvider() error = %v", err)
	}

	if _, err := provider.AccessToken(); err == nil {
		t.Error("Expected error when response lacks access_token")
	}
}

func TestTokenProvider_AccessToken_ServerError(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, call int) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Bad Request","errors":[{"resource":"RefreshToken","field":"refresh_token","code":"invalid"}]}`))
	})
	provider, err := NewTokenProvider(testCredentials(srv.URL))
	if err != nil {
		t.Fatalf("NewTokenProvider() error = %v", err)
	}

	_, err = provider.AccessToken()
	if err == nil {
		t.Fatal("Expected error on 400 from token endpoint")
	}
	if !strings.Contains(err.Error(), "token exchange") {
		t.Errorf("Expected token exchange context in error, got: %v", err)
	}
}

func TestTokenProvider_ReusesUnexpiredToken(t *testing.T) {
	srv := newTokenServer(t, stravaToken("abc123", "refresh-2", time.Now().Add(6*time.Hour)))
	provider, err := NewTokenProvider(testCredentials(srv.URL))
	if err != nil {
		t.Fatalf("NewTokenProvider() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := provider.AccessToken(); err != nil {
			t.Fatalf("AccessToken() call %d error = %v", i, err)
		}
	}

	if srv.calls() != 1 {
		t.Errorf("Expected 1 token exchange, got %d", srv.calls())
	}
}

func TestTokenProvider_FreshTokens_ExchangesEveryCall(t *testing.T) {
	srv := newTokenServer(t, stravaToken("abc123", "", time.Now().Add(6*time.Hour)))
	provider, err := NewTokenProvider(testCredentials(srv.URL), WithFreshTokens(true))
	if err != nil {
		t.Fatalf("NewTokenProvider() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := provider.AccessToken(); err != nil {
			t.Fatalf("AccessToken() call %d error = %v", i, err)
		}
	}

	if srv.calls() != 3 {
		t.Errorf("Expected 3 token exchanges, got %d", srv.calls())
	}
}

func TestTokenProvider_RefreshesNearExpiry_WithRotatedToken(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
	srv := newTokenServer(t, stravaToken("abc123", "refresh-2", expiresAt))
	provider, err := NewTokenProvider(testCredentials(srv.URL))
	if err != nil {
		t.Fatalf("NewTokenProvider() error = %v", err)
	}

	if _, err := provider.AccessToken(); err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if !provider.token.Expiry.Equal(expiresAt) {
		t.Errorf("Expected expiry %v from expires_at, got %v", expiresAt, provider.token.Expiry)
	}

	// One minute before expiry is inside the refresh leeway.
	provider.now = func() time.Time { return expiresAt.Add(-time.Minute) }
	if _, err := provider.AccessToken(); err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}

	if srv.calls() != 2 {
		t.Fatalf("Expected 2 token exchanges, got %d", srv.calls())
	}
	if got := srv.form(1)["refresh_token"]; got != "refresh-2" {
		t.Errorf("Expected rotated refresh token refresh-2, got %s", got)
	}
}

func TestTokenProvider_TokenCache(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "nested", "token.json")
	srv := newTokenServer(t, stravaToken("abc123", "refresh-2", time.Now().Add(6*time.Hour)))

	first, err := NewTokenProvider(testCredentials(srv.URL), WithTokenCache(cachePath))
	if err != nil {
		t.Fatalf("NewTokenProvider() error = %v", err)
	}
	if _, err := first.AccessToken(); err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}

	info, err := os.Stat(cachePath)
	if err != nil {
		t.Fatalf("Expected token cache file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected cache permissions 0600, got %o", perm)
	}

	t.Run("reused by next run", func(t *testing.T) {
		second, err := NewTokenProvider(testCredentials(srv.URL), WithTokenCache(cachePath))
		if err != nil {
			t.Fatalf("NewTokenProvider() error = %v", err)
		}
		token, err := second.AccessToken()
		if err != nil {
			t.Fatalf("AccessToken() error = %v", err)
		}
		if token != "abc123" {
			t.Errorf("Expected cached token abc123, got %s", token)
		}
		if srv.calls() != 1 {
			t.Errorf("Expected no new exchange, got %d total", srv.calls())
		}
	})

	t.Run("ignored for another refresh token", func(t *testing.T) {
		creds := testCredentials(srv.URL)
		creds.RefreshToken = "other-refresh"
		third, err := NewTokenProvider(creds, WithTokenCache(cachePath))
		if err != nil {
			t.Fatalf("NewTokenProvider() error = %v", err)
		}
		if _, err := third.AccessToken(); err != nil {
			t.Fatalf("AccessToken() error = %v", err)
		}
		if got := srv.form(srv.calls() - 1)["refresh_token"]; got != "other-refresh" {
			t.Errorf("Expected exchange with other-refresh, got %s", got)
		}
	})
}

func TestTokenProvider_CorruptCache(t *testing.T) {
	// Arrange - a cache truncated mid-write
	cachePath := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(cachePath, []byte(`{"issued_for":"refresh-1","tok`), 0600); err != nil {
		t.Fatal(err)
	}
	srv := newTokenServer(t, stravaToken("abc123", "refresh-2", time.Now().Add(6*time.Hour)))

	// Act
	provider, err := NewTokenProvider(testCredentials(srv.URL), WithTokenCache(cachePath))
	if err != nil {
		t.Fatalf("Expected corrupt cache to be ignored, got %v", err)
	}
	token, err := provider.AccessToken()

	// Assert
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if token != "abc123" {
		t.Errorf("Expected abc123, got %s", token)
	}
	if srv.calls() != 1 || srv.form(0)["refresh_token"] != "refresh-1" {
		t.Errorf("Expected one exchange with the configured refresh token, got %d", srv.calls())
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatalf("Failed to read token cache: %v", err)
	}
	var cached cachedToken
	if err := json.Unmarshal(data, &cached); err != nil {
		t.Errorf("Expected cache to be rewritten as valid JSON: %v", err)
	}
	if cached.Token == nil || cached.Token.RefreshToken != "refresh-2" {
		t.Errorf("Expected rewritten cache with refresh-2, got %+v", cached.Token)
	}

	entries, err := os.ReadDir(filepath.Dir(cachePath))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the cache file in its directory, got %d entries", len(entries))
	}
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name        string
		creds       Credentials
		wantErr     bool
		errContains string
	}{
		{
			name:  "complete",
			creds: testCredentials("https://www.strava.com/oauth/token"),
		},
		{
			name:        "empty",
			creds:       Credentials{},
			wantErr:     true,
			errContains: "CLIENT_ID, CLIENT_SECRET, REFRESH_TOKEN, AUTHENTICATION_ENDPOINT",
		},
		{
			name: "missing secret",
			creds: Credentials{
				ClientID:     "id",
				RefreshToken: "rt",
				TokenURL:     "https://www.strava.com/oauth/token",
			},
			wantErr:     true,
			errContains: "CLIENT_SECRET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			if !errors.Is(err, ErrMissingCredentials) {
				t.Errorf("Expected ErrMissingCredentials, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %v, should contain %q", err, tt.errContains)
			}
		})
	}
}
