package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/roessland/stravasnap/strava"
)

// StravaClient interface abstracts the Strava client for testing
type StravaClient interface {
	GetAthlete(ctx context.Context) (json.RawMessage, error)
	ListActivities(ctx context.Context, params strava.ListActivitiesParams) ([]strava.SummaryActivity, error)
	GetActivity(ctx context.Context, id int64) (json.RawMessage, error)
	GetGear(ctx context.Context, id string) (json.RawMessage, error)
}

// Pacer is consulted before and told after every activity detail request.
// Either call may block or fail to honour rate limits.
type Pacer interface {
	Wait(ctx context.Context) error
	Tick(ctx context.Context) error
}

// FileSystem interface abstracts file operations for testing
type FileSystem interface {
	WriteFile(path string, data []byte, perm int) error
	Exists(path string) bool
	MkdirAll(path string, perm int) error
}

// Logger interface abstracts logging for testing
type Logger interface {
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Progress reports progress of a long counted fetch
type Progress interface {
	Start(title string, total int)
	Step()
	Done()
}

// Result represents the outcome of a single model snapshot
type Result struct {
	Model   string
	Path    string
	Items   int
	Skipped bool // true if the model name was not recognised
	Error   error
}

// Summary represents the overall results of a run
type Summary struct {
	RunID     string
	Timestamp time.Time
	Written   int
	Skipped   int
	Failed    int
	Results   []Result
}
