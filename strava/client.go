package strava

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/go-querystring/query"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Strava API v3 endpoint.
	DefaultBaseURL = "https://www.strava.com/api/v3/"
	// DefaultTokenURL is the Strava OAuth token endpoint.
	DefaultTokenURL = "https://www.strava.com/oauth/token"

	// ActivitiesPerPage is the largest page size Strava accepts.
	ActivitiesPerPage = 200

	userAgent = "stravasnap"
)

var (
	// ErrStatus is returned when the API returns an unexpected status code.
	ErrStatus = errors.New("unexpected status code")
	// ErrRateLimited is returned on HTTP 429 or when the daily quota is used up.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrMalformedJSON is returned when a response body is not valid JSON.
	ErrMalformedJSON = errors.New("malformed JSON response")
	// ErrMissingCredentials is returned when OAuth credentials are not configured.
	ErrMissingCredentials = errors.New("missing credentials")
)

// Logger is the subset of structured logging the client needs
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}

// Client is an authenticated Strava API client.
// Use [New] to create one.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     oauth2.TokenSource
	governor   *Governor
	logger     Logger
}

// ClientOption configures a Client before use.
type ClientOption func(*Client)

// WithBaseURL sets a custom API base URL. The path should end in a slash.
func WithBaseURL(baseURL *url.URL) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client for API calls.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithGovernor makes the client report rate limit headers to g.
func WithGovernor(g *Governor) ClientOption {
	return func(c *Client) {
		c.governor = g
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Strava client that authorizes every request with a token
// from tokens.
func New(tokens oauth2.TokenSource, opts ...ClientOption) *Client {
	baseURL, _ := url.Parse(DefaultBaseURL)

	c := &Client{
		baseURL:    baseURL,
		httpClient: NewHTTPClient(false),
		tokens:     tokens,
		logger:     nopLogger{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewHTTPClient returns an HTTP client with a 30 second timeout.
// insecureSkipVerify disables TLS certificate verification and must only be
// set on explicit user request.
func NewHTTPClient(insecureSkipVerify bool) *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // opt-in only
			},
		},
	}
}

// GetAthlete returns the authenticated athlete's profile verbatim.
func (c *Client) GetAthlete(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "athlete", nil)
}

// ListActivities returns one page of the authenticated athlete's activities.
func (c *Client) ListActivities(ctx context.Context, params ListActivitiesParams) ([]SummaryActivity, error) {
	body, err := c.getRaw(ctx, "athlete/activities", params)
	if err != nil {
		return nil, err
	}

	var activities []SummaryActivity
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, fmt.Errorf("decode activities page %d: %w", params.Page, err)
	}

	return activities, nil
}

// GetActivity returns a detailed activity, including all segment efforts.
func (c *Client) GetActivity(ctx context.Context, id int64) (json.RawMessage, error) {
	path := "activities/" + strconv.FormatInt(id, 10)
	return c.getRaw(ctx, path, activityParams{IncludeAllEfforts: true})
}

// GetGear returns a single piece of gear (bike or shoe) verbatim.
func (c *Client) GetGear(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, "gear/"+url.PathEscape(id), nil)
}

// getRaw performs an authenticated GET and returns the validated JSON body.
func (c *Client) getRaw(ctx context.Context, path string, params any) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, params)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("GET %s: %w", path, ErrMalformedJSON)
	}

	return json.RawMessage(body), nil
}

// newRequest creates a request relative to the base URL.
// params, when non-nil, is encoded with go-querystring struct tags.
func (c *Client) newRequest(ctx context.Context, method, path string, params any) (*http.Request, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})

	if params != nil {
		values, err := query.Values(params)
		if err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}
		u.RawQuery = values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	return req, nil
}

// authorize sets the bearer token header from the token source.
func (c *Client) authorize(req *http.Request) error {
	if c.tokens == nil {
		return ErrMissingCredentials
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("obtain access token: %w", err)
	}

	tok.SetAuthHeader(req)
	return nil
}

// do authorizes and executes the request, returning the response body of a
// successful call.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	c.logger.Debug("request", "method", req.Method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if c.governor != nil {
		c.governor.Observe(resp.Header)
	}

	c.logger.Debug("response",
		"status", resp.StatusCode,
		"url", req.URL.String(),
		"rate_limit", resp.Header.Get("X-RateLimit-Limit"),
		"rate_usage", resp.Header.Get("X-RateLimit-Usage"))

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf(
			"%s: %d, %w",
			http.StatusText(resp.StatusCode),
			resp.StatusCode,
			ErrRateLimited,
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf(
			"%s: %d: %s, %w",
			http.StatusText(resp.StatusCode),
			resp.StatusCode,
			faultMessage(body),
			ErrStatus,
		)
	}

	return body, nil
}

// faultMessage extracts a readable message from a Strava error body.
func faultMessage(body []byte) string {
	var f Fault
	if err := json.Unmarshal(body, &f); err == nil && f.Message != "" {
		return f.String()
	}

	body = bytes.TrimSpace(body)
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	return string(body)
}
