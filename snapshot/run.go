package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/roessland/stravasnap/pkg/output"
	"github.com/roessland/stravasnap/strava"
)

// ErrSnapshotsFailed is returned by Run when FailOnError is set and a model failed
var ErrSnapshotsFailed = errors.New("snapshots failed")

// Config holds all configuration needed for a snapshot run
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AuthEndpoint string
	BaseURL      string

	DataDir    string
	TokenCache string
	Since      string
	Models     []string

	DetailLimit int
	Pause       time.Duration

	JSONMode     bool
	Pretty       bool
	FreshToken   bool
	InsecureAuth bool
	FailOnError  bool
}

// Run performs a snapshot run: one snapshot per model, sharing a run context.
// Per-model failures are reported and only make Run fail when FailOnError is set.
func Run(ctx context.Context, config Config) error {
	now := time.Now()

	// 1. Validate and parse the activity window
	window, err := ParseWindow(config.Since, now)
	if err != nil {
		return err
	}

	// 2. Setup dependencies
	ol, presentation, err := setupDependencies(config)
	if err != nil {
		return err
	}
	logger := ol.Component("snapshot")

	// 3. Create the Strava client. Without one every model still runs and
	// fails with the setup error, so the summary reports each of them.
	governor := newGovernor(config, ol, presentation)
	var client StravaClient
	stravaClient, setupErr := createClient(config, governor, ol, presentation)
	if setupErr != nil {
		presentation.ShowError(setupErr, "Failed to set up the Strava client")
		client = failingClient{err: setupErr}
	} else {
		client = stravaClient
	}

	// 4. Prepare the data directory
	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	dataDir, err = homedir.Expand(dataDir)
	if err != nil {
		presentation.ShowError(err, "Failed to expand data directory path")
		return err
	}

	// 5. Setup services
	svc := NewService(client, NewOSFileSystem(), logger,
		WithPacer(governor),
		WithProgress(presentation.Progress()),
		WithDataDir(dataDir),
		WithPretty(config.Pretty),
	)

	models := config.Models
	if len(models) == 0 {
		models = DefaultModels
	}

	run := NewRunContext(now)
	logger.Info("starting snapshot run",
		"run_id", run.ID.String(),
		"models", strings.Join(models, ","),
		"window", window.String(),
		"data_dir", dataDir)

	// 6. Snapshot every model
	summary := runSnapshots(ctx, svc, run, models, window, presentation)

	logger.Info("snapshot run completed",
		"written", summary.Written,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"pauses", governor.Pauses())

	if config.FailOnError {
		if setupErr != nil {
			return setupErr
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d: %w", summary.Failed, len(summary.Results), ErrSnapshotsFailed)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// failingClient stands in for a client that could not be set up
type failingClient struct {
	err error
}

func (c failingClient) GetAthlete(context.Context) (json.RawMessage, error) {
	return nil, c.err
}

func (c failingClient) ListActivities(context.Context, strava.ListActivitiesParams) ([]strava.SummaryActivity, error) {
	return nil, c.err
}

func (c failingClient) GetActivity(context.Context, int64) (json.RawMessage, error) {
	return nil, c.err
}

func (c failingClient) GetGear(context.Context, string) (json.RawMessage, error) {
	return nil, c.err
}

// setupDependencies creates the output logger and presentation service
func setupDependencies(config Config) (*output.OutputLogger, *PresentationService, error) {
	ol, err := output.New(config.JSONMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output system: %w", err)
	}

	return ol, NewPresentationService(ol), nil
}

// newGovernor paces detail requests and announces every pause
func newGovernor(config Config, ol *output.OutputLogger, presentation *PresentationService) *strava.Governor {
	return strava.NewGovernor(config.DetailLimit, config.Pause,
		strava.WithPauseHook(presentation.ShowPause),
		strava.WithGovernorLogger(ol.Component("ratelimit")),
	)
}

// createClient wires the token provider and API client
func createClient(config Config, governor *strava.Governor, ol *output.OutputLogger, presentation *PresentationService) (*strava.Client, error) {
	authEndpoint := config.AuthEndpoint
	if authEndpoint == "" {
		authEndpoint = strava.DefaultTokenURL
	}

	creds := strava.Credentials{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RefreshToken: config.RefreshToken,
		TokenURL:     authEndpoint,
	}

	authLogger := ol.Component("auth")
	if config.InsecureAuth {
		authLogger.Warn("TLS certificate verification disabled for the token endpoint", "endpoint", authEndpoint)
		presentation.ShowWarning("TLS certificate verification is disabled for %s", authEndpoint)
	}

	tokens, err := strava.NewTokenProvider(creds,
		strava.WithTokenHTTPClient(strava.NewHTTPClient(config.InsecureAuth)),
		strava.WithTokenCache(config.TokenCache),
		strava.WithFreshTokens(config.FreshToken),
		strava.WithTokenLogger(authLogger),
	)
	if err != nil {
		return nil, err
	}

	opts := []strava.ClientOption{
		strava.WithGovernor(governor),
		strava.WithLogger(ol.Component("strava")),
	}
	if config.BaseURL != "" {
		baseURL, err := parseBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, strava.WithBaseURL(baseURL))
	}

	return strava.New(tokens, opts...), nil
}

// parseBaseURL parses an API root. Paths are resolved relative to it, so it
// always ends in a slash.
func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", raw)
	}
	return u, nil
}

// runSnapshots saves each model in order. A failing model is reported and
// the run continues with the next one.
func runSnapshots(ctx context.Context, svc *Service, run RunContext, models []string, window ActivityWindow, reporter Reporter) *Summary {
	summary := &Summary{
		RunID:     run.ID.String(),
		Timestamp: run.Timestamp,
	}

	reporter.RunStarted(run)

	for _, model := range models {
		if ctx.Err() != nil {
			break
		}

		reporter.ModelStarted(model)
		result := saveIsolated(ctx, svc, run, model, window)
		reporter.ModelFinished(result)

		switch {
		case result.Error != nil:
			summary.Failed++
		case result.Skipped:
			summary.Skipped++
		default:
			summary.Written++
		}
		summary.Results = append(summary.Results, result)
	}

	reporter.Finished(summary)
	return summary
}

// saveIsolated runs one Save and turns a panic into a failed result
func saveIsolated(ctx context.Context, svc *Service, run RunContext, model string, window ActivityWindow) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Model: model, Error: fmt.Errorf("panic while saving %s: %v", model, r)}
		}
	}()

	result, err := svc.Save(ctx, run, model, window)
	if err != nil {
		result.Error = err
	}
	return result
}
