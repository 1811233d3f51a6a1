package snapshot

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Model names a snapshot kind. It is also the directory and file name.
type Model string

const (
	ModelAthlete    Model = "athlete"
	ModelActivities Model = "athlete_activities"
	ModelGear       Model = "gear"
)

// DefaultModels are snapshotted by a run without an explicit model list, in order.
var DefaultModels = []string{
	string(ModelActivities),
	string(ModelAthlete),
	string(ModelGear),
}

// RunContext is fixed when a run starts and shared by all its snapshots
type RunContext struct {
	ID        uuid.UUID
	Timestamp time.Time
}

// NewRunContext starts a run at now
func NewRunContext(now time.Time) RunContext {
	return RunContext{
		ID:        uuid.New(),
		Timestamp: now.UTC(),
	}
}

// Dir is the snapshot directory of model under root:
// <root>/<model>/<YYYY>/<MM>/<DD>/<HH>/<mm>
func (r RunContext) Dir(root, model string) string {
	return filepath.Join(root, model, filepath.FromSlash(r.Timestamp.UTC().Format("2006/01/02/15/04")))
}
