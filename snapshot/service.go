package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/roessland/stravasnap/strava"
)

// DefaultDataDir is where snapshots are written when no data dir is configured
const DefaultDataDir = "data"

// Service fetches models from Strava and writes them as snapshots, without
// presentation concerns
type Service struct {
	client   StravaClient
	fs       FileSystem
	logger   Logger
	pacer    Pacer
	progress Progress
	dataDir  string
	pretty   bool
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithPacer sets the pacer consulted before and ticked after every activity detail request
func WithPacer(p Pacer) ServiceOption {
	return func(s *Service) {
		s.pacer = p
	}
}

// WithProgress sets the progress reporter for activity details
func WithProgress(p Progress) ServiceOption {
	return func(s *Service) {
		s.progress = p
	}
}

// WithDataDir sets the snapshot root directory
func WithDataDir(dir string) ServiceOption {
	return func(s *Service) {
		s.dataDir = dir
	}
}

// WithPretty makes snapshots indented instead of compact
func WithPretty(pretty bool) ServiceOption {
	return func(s *Service) {
		s.pretty = pretty
	}
}

// NewService creates a new snapshot service
func NewService(client StravaClient, fs FileSystem, logger Logger, opts ...ServiceOption) *Service {
	s := &Service{
		client:   client,
		fs:       fs,
		logger:   logger,
		pacer:    strava.NewGovernor(0, 0),
		progress: noProgress{},
		dataDir:  DefaultDataDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save fetches model and writes it under the run's timestamped directory.
// An unknown model is skipped: nothing is written and no error is returned.
func (s *Service) Save(ctx context.Context, run RunContext, model string, window ActivityWindow) (Result, error) {
	result := Result{Model: model}

	var (
		data  any
		items int
	)

	switch Model(model) {
	case ModelAthlete:
		athlete, err := s.FetchAthlete(ctx)
		if err != nil {
			return result, err
		}
		data, items = athlete, 1
	case ModelActivities:
		activities, err := s.FetchActivities(ctx, window)
		if err != nil {
			return result, err
		}
		data, items = activities, len(activities)
	case ModelGear:
		gear, err := s.FetchGear(ctx)
		if err != nil {
			return result, err
		}
		data, items = gear, len(gear.Bikes)+len(gear.Shoes)
	default:
		s.logger.Warn("unknown model, skipping", "model", model)
		result.Skipped = true
		return result, nil
	}

	path, err := s.write(run, model, data)
	if err != nil {
		return result, err
	}

	result.Path = path
	result.Items = items
	s.logger.Info("snapshot written", "model", model, "path", path, "items", items)
	return result, nil
}

func (s *Service) write(run RunContext, model string, data any) (string, error) {
	dir := run.Dir(s.dataDir, model)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}

	var (
		body []byte
		err  error
	)
	if s.pretty {
		body, err = json.MarshalIndent(data, "", "  ")
	} else {
		body, err = json.Marshal(data)
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode %s snapshot: %w", model, err)
	}

	path := filepath.Join(dir, model+".json")
	if s.fs.Exists(path) {
		s.logger.Warn("overwriting snapshot from the same minute", "path", path)
	}

	if err := s.fs.WriteFile(path, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return path, nil
}

type noProgress struct{}

func (noProgress) Start(string, int) {}
func (noProgress) Step()             {}
func (noProgress) Done()             {}
