package output

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pterm/pterm"
)

// Logger wraps slog.Logger with context-aware methods
type Logger interface {
	// Component returns a logger for a specific component
	Component(name string) Logger
	// With returns a logger with additional attributes
	With(args ...any) Logger

	// Standard log levels
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// OutputLogger handles both user output and structured logging
type OutputLogger struct {
	Logger
	jsonMode bool
}

// SnapshotState is the outcome of a single snapshot
type SnapshotState int

const (
	StateWritten SnapshotState = iota
	StateSkipped
	StateFailed
)

func (s SnapshotState) String() string {
	switch s {
	case StateWritten:
		return "written"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// New creates a new OutputLogger
// If jsonMode is true, only structured logs go to stdout
// If jsonMode is false, structured logs go to file and user messages use pterm
func New(jsonMode bool) (*OutputLogger, error) {
	var slogLogger *slog.Logger

	if jsonMode {
		// JSON mode: structured logs only to stdout
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: getLogLevel(),
		})
		slogLogger = slog.New(handler)
	} else {
		// Interactive mode: structured logs to file
		logFile, err := getLogFilePath()
		if err != nil {
			return nil, fmt.Errorf("failed to get log file path: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		handler := slog.NewTextHandler(file, &slog.HandlerOptions{
			Level: getLogLevel(),
		})
		slogLogger = slog.New(handler)
	}

	return &OutputLogger{
		Logger:   &loggerImpl{slog: slogLogger},
		jsonMode: jsonMode,
	}, nil
}

// NewWithLogger wraps an existing slog logger, mainly for tests
func NewWithLogger(l *slog.Logger, jsonMode bool) *OutputLogger {
	return &OutputLogger{
		Logger:   &loggerImpl{slog: l},
		jsonMode: jsonMode,
	}
}

// getLogLevel returns the log level from LOG_LEVEL env var, defaulting to debug
func getLogLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "trace":
		return slog.LevelDebug - 4 // Trace is lower than debug
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// getLogFilePath returns the path to the log file
func getLogFilePath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".stravasnap", "stravasnap.log"), nil
}

// RunHeader shows which run is being written
func (ol *OutputLogger) RunHeader(runID string, timestamp time.Time) {
	if ol.jsonMode {
		ol.Logger.Info("run_start", "run_id", runID, "timestamp", timestamp.Format(time.RFC3339))
		return
	}

	pterm.Println()
	pterm.Info.Println(fmt.Sprintf("📸 Snapshot run %s at %s UTC", runID, timestamp.Format("2006-01-02 15:04")))
}

// ModelHeader announces the start of a model snapshot
func (ol *OutputLogger) ModelHeader(model string) {
	if ol.jsonMode {
		ol.Logger.Info("model_start", "model", model)
		return
	}

	pterm.Println()
	pterm.Info.Println(pterm.NewStyle(pterm.Bold).Sprint(model))
}

// SnapshotLine shows the outcome of one model snapshot
func (ol *OutputLogger) SnapshotLine(model string, state SnapshotState, detail string) {
	if ol.jsonMode {
		ol.Logger.Info("snapshot_status", "model", model, "state", state.String(), "detail", detail)
		return
	}

	pterm.Println(model, formatState(state), detail)
}

func formatState(state SnapshotState) string {
	switch state {
	case StateWritten:
		return pterm.NewStyle(pterm.FgGreen).Sprint("✅ Written")
	case StateSkipped:
		return pterm.NewStyle(pterm.FgGray).Sprint("⏭️  Skipped")
	case StateFailed:
		return pterm.NewStyle(pterm.FgRed).Sprint("❌ Failed")
	default:
		return ""
	}
}

// Pause tells the user the run is waiting on the rate limit
func (ol *OutputLogger) Pause(d time.Duration) {
	until := time.Now().Add(d)
	if ol.jsonMode {
		ol.Logger.Info("rate_limit_pause", "duration", d.String(), "until", until.Format(time.RFC3339))
		return
	}

	pterm.Warning.Printf("Rate limit reached, pausing %s (until %s)\n", d.Round(time.Second), until.Format("15:04:05"))
}

// ProgressBar tracks a counted operation. A nil *ProgressBar is a no-op.
type ProgressBar struct {
	bar *pterm.ProgressbarPrinter
}

// StartProgress starts a progress bar in interactive mode.
// In JSON mode it returns nil.
func (ol *OutputLogger) StartProgress(title string, total int) *ProgressBar {
	if ol.jsonMode || total <= 0 {
		return nil
	}

	bar, err := pterm.DefaultProgressbar.WithTotal(total).WithTitle(title).Start()
	if err != nil {
		ol.Logger.Warn("failed to start progress bar", "error", err)
		return nil
	}
	return &ProgressBar{bar: bar}
}

// Increment advances the bar by one
func (p *ProgressBar) Increment() {
	if p == nil {
		return
	}
	p.bar.Increment()
}

// Stop removes the bar from the terminal
func (p *ProgressBar) Stop() {
	if p == nil {
		return
	}
	p.bar.Stop()
}

// Progress shows ongoing operations
func (ol *OutputLogger) Progress(format string, args ...any) {
	if ol.jsonMode {
		ol.Logger.Info("progress", "message", fmt.Sprintf(format, args...))
	} else {
		pterm.Info.Printf(format+"\n", args...)
	}
}

// Status shows important state changes
func (ol *OutputLogger) Status(format string, args ...any) {
	if ol.jsonMode {
		ol.Logger.Info("status", "message", fmt.Sprintf(format, args...))
	} else {
		pterm.Success.Printf(format+"\n", args...)
	}
}

// Result shows final results/summaries
func (ol *OutputLogger) Result(format string, args ...any) {
	if ol.jsonMode {
		ol.Logger.Info("result", "message", fmt.Sprintf(format, args...))
	} else {
		pterm.Success.Printf("🎯 "+format+"\n", args...)
	}
}

// Warning shows recoverable problems
func (ol *OutputLogger) Warning(format string, args ...any) {
	if ol.jsonMode {
		ol.Logger.Warn("user_warning", "message", fmt.Sprintf(format, args...))
	} else {
		pterm.Warning.Printf(format+"\n", args...)
	}
}

// Error shows user-facing errors
func (ol *OutputLogger) Error(format string, args ...any) {
	if ol.jsonMode {
		ol.Logger.Error("user_error", "message", fmt.Sprintf(format, args...))
	} else {
		pterm.Error.Printf(format+"\n", args...)
	}
}

// JSON outputs structured data (only in JSON mode)
func (ol *OutputLogger) JSON(data any) error {
	if !ol.jsonMode {
		return nil
	}

	return json.NewEncoder(os.Stdout).Encode(data)
}

// LogAndShowError logs an error with full context and shows a user-friendly message
func (ol *OutputLogger) LogAndShowError(err error, userMsg string, args ...any) {
	ol.Logger.Error("operation_failed", "error", err.Error(), "user_message", fmt.Sprintf(userMsg, args...))

	ol.Error(userMsg+": %v", append(args, err)...)
}

// loggerImpl implements Logger interface
type loggerImpl struct {
	slog *slog.Logger
}

func (l *loggerImpl) Component(name string) Logger {
	return &loggerImpl{slog: l.slog.With("component", name)}
}

func (l *loggerImpl) With(args ...any) Logger {
	return &loggerImpl{slog: l.slog.With(args...)}
}

func (l *loggerImpl) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

func (l *loggerImpl) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

func (l *loggerImpl) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

func (l *loggerImpl) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}
