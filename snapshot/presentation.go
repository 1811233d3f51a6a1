package snapshot

import (
	"fmt"
	"time"

	"github.com/roessland/stravasnap/pkg/output"
)

// Reporter is told about the progress of a run
type Reporter interface {
	RunStarted(run RunContext)
	ModelStarted(model string)
	ModelFinished(result Result)
	Finished(summary *Summary)
}

// PresentationService handles all presentation logic
type PresentationService struct {
	ol *output.OutputLogger
}

// NewPresentationService creates a new presentation service
func NewPresentationService(ol *output.OutputLogger) *PresentationService {
	return &PresentationService{ol: ol}
}

// ShowProgress displays a progress message
func (ps *PresentationService) ShowProgress(msg string, args ...any) {
	ps.ol.Progress(msg, args...)
}

// ShowStatus displays a status message
func (ps *PresentationService) ShowStatus(msg string, args ...any) {
	ps.ol.Status(msg, args...)
}

// ShowWarning displays a warning
func (ps *PresentationService) ShowWarning(msg string, args ...any) {
	ps.ol.Warning(msg, args...)
}

// ShowError logs and displays an error
func (ps *PresentationService) ShowError(err error, msg string, args ...any) {
	ps.ol.LogAndShowError(err, msg, args...)
}

// ShowPause announces a rate limit pause
func (ps *PresentationService) ShowPause(d time.Duration) {
	ps.ol.Pause(d)
}

// RunStarted shows the run header
func (ps *PresentationService) RunStarted(run RunContext) {
	ps.ol.RunHeader(run.ID.String(), run.Timestamp)
}

// ModelStarted shows the model header
func (ps *PresentationService) ModelStarted(model string) {
	ps.ol.ModelHeader(model)
}

// ModelFinished displays the outcome of one model snapshot
func (ps *PresentationService) ModelFinished(result Result) {
	switch {
	case result.Error != nil:
		ps.ShowError(result.Error, "Failed to snapshot %s", result.Model)
		ps.ol.SnapshotLine(result.Model, output.StateFailed, "")
	case result.Skipped:
		ps.ShowWarning("Unknown model %q, skipping", result.Model)
		ps.ol.SnapshotLine(result.Model, output.StateSkipped, "")
	default:
		ps.ol.SnapshotLine(result.Model, output.StateWritten, fmt.Sprintf("%s (%d items)", result.Path, result.Items))
	}
}

// Finished shows the final results
func (ps *PresentationService) Finished(summary *Summary) {
	ps.ShowFinalResults(summary)
	ps.ShowJSONResults(summary)
}

// ShowFinalResults displays the final run summary
func (ps *PresentationService) ShowFinalResults(summary *Summary) {
	ps.ol.Result("Snapshot complete: %d written, %d skipped, %d failed", summary.Written, summary.Skipped, summary.Failed)
}

// ShowJSONResults outputs structured JSON results. It does nothing outside JSON mode.
func (ps *PresentationService) ShowJSONResults(summary *Summary) {
	snapshots := make([]map[string]any, 0, len(summary.Results))
	for _, r := range summary.Results {
		entry := map[string]any{
			"model": r.Model,
			"state": resultState(r).String(),
		}
		if r.Path != "" {
			entry["path"] = r.Path
			entry["items"] = r.Items
		}
		if r.Error != nil {
			entry["error"] = r.Error.Error()
		}
		snapshots = append(snapshots, entry)
	}

	ps.ol.JSON(map[string]any{
		"run_id":    summary.RunID,
		"timestamp": summary.Timestamp.Format(time.RFC3339),
		"summary": map[string]int{
			"written": summary.Written,
			"skipped": summary.Skipped,
			"failed":  summary.Failed,
		},
		"snapshots": snapshots,
	})
}

// Progress adapts the terminal progress bar to the Progress interface
func (ps *PresentationService) Progress() Progress {
	return &barProgress{ol: ps.ol}
}

type barProgress struct {
	ol  *output.OutputLogger
	bar *output.ProgressBar
}

func (p *barProgress) Start(title string, total int) {
	p.bar = p.ol.StartProgress(title, total)
}

func (p *barProgress) Step() {
	p.bar.Increment()
}

func (p *barProgress) Done() {
	p.bar.Stop()
	p.bar = nil
}

func resultState(r Result) output.SnapshotState {
	switch {
	case r.Error != nil:
		return output.StateFailed
	case r.Skipped:
		return output.StateSkipped
	default:
		return output.StateWritten
	}
}
