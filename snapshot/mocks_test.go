package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roessland/stravasnap/strava"
)

// MockStravaClient implements StravaClient for testing
type MockStravaClient struct {
	Athlete      json.RawMessage
	AthleteError error

	// Pages are returned by ListActivities in order; further pages are empty
	Pages        [][]strava.SummaryActivity
	ListError    error
	ListCalls    []strava.ListActivitiesParams
	ActivityErr  map[int64]error
	ActivityIDs  []int64
	OnActivity   func(id int64)
	Gear         map[string]json.RawMessage
	GearCalls    []string
	GetGearError error

	PanicOnAthlete bool
}

func (m *MockStravaClient) GetAthlete(ctx context.Context) (json.RawMessage, error) {
	if m.PanicOnAthlete {
		panic("athlete exploded")
	}
	if m.AthleteError != nil {
		return nil, m.AthleteError
	}
	return m.Athlete, nil
}

func (m *MockStravaClient) ListActivities(ctx context.Context, params strava.ListActivitiesParams) ([]strava.SummaryActivity, error) {
	m.ListCalls = append(m.ListCalls, params)
	if m.ListError != nil {
		return nil, m.ListError
	}
	if params.Page < 1 || params.Page > len(m.Pages) {
		return []strava.SummaryActivity{}, nil
	}
	return m.Pages[params.Page-1], nil
}

func (m *MockStravaClient) GetActivity(ctx context.Context, id int64) (json.RawMessage, error) {
	m.ActivityIDs = append(m.ActivityIDs, id)
	if m.OnActivity != nil {
		m.OnActivity(id)
	}
	if err := m.ActivityErr[id]; err != nil {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"id":%d}`, id)), nil
}

func (m *MockStravaClient) GetGear(ctx context.Context, id string) (json.RawMessage, error) {
	m.GearCalls = append(m.GearCalls, id)
	if m.GetGearError != nil {
		return nil, m.GetGearError
	}
	if g, ok := m.Gear[id]; ok {
		return g, nil
	}
	return json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)), nil
}

// activityPage builds a page of summary activities with the given ids
func activityPage(ids ...int64) []strava.SummaryActivity {
	page := make([]strava.SummaryActivity, 0, len(ids))
	for _, id := range ids {
		page = append(page, strava.SummaryActivity{ID: id})
	}
	return page
}

// MockPacer implements Pacer for testing
type MockPacer struct {
	Waits   int
	Ticks   int
	WaitErr error
	Err     error
}

func (m *MockPacer) Wait(ctx context.Context) error {
	m.Waits++
	return m.WaitErr
}

func (m *MockPacer) Tick(ctx context.Context) error {
	m.Ticks++
	return m.Err
}

// MockProgress implements Progress for testing
type MockProgress struct {
	Title   string
	Total   int
	Steps   int
	Started bool
	Stopped bool
}

func (m *MockProgress) Start(title string, total int) {
	m.Started = true
	m.Title = title
	m.Total = total
}

func (m *MockProgress) Step() {
	m.Steps++
}

func (m *MockProgress) Done() {
	m.Stopped = true
}

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	Files      map[string][]byte
	WriteError error
	MkdirError error
	WriteCalls []WriteCall
	MkdirCalls []string
}

type WriteCall struct {
	Path string
	Data []byte
	Perm int
}

func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files: make(map[string][]byte),
	}
}

func (m *MockFileSystem) WriteFile(path string, data []byte, perm int) error {
	m.WriteCalls = append(m.WriteCalls, WriteCall{Path: path, Data: data, Perm: perm})
	if m.WriteError != nil {
		return m.WriteError
	}
	m.Files[path] = data
	return nil
}

func (m *MockFileSystem) Exists(path string) bool {
	_, exists := m.Files[path]
	return exists
}

func (m *MockFileSystem) MkdirAll(path string, perm int) error {
	m.MkdirCalls = append(m.MkdirCalls, path)
	return m.MkdirError
}

// MockLogger implements Logger for testing
type MockLogger struct {
	InfoCalls  []LogCall
	DebugCalls []LogCall
	WarnCalls  []LogCall
}

type LogCall struct {
	Message string
	Args    []any
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.InfoCalls = append(m.InfoCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.DebugCalls = append(m.DebugCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.WarnCalls = append(m.WarnCalls, LogCall{Message: msg, Args: args})
}

// MockReporter implements Reporter for testing
type MockReporter struct {
	Started []string
	Results []Result
	Summary *Summary
}

func (m *MockReporter) RunStarted(run RunContext) {}

func (m *MockReporter) ModelStarted(model string) {
	m.Started = append(m.Started, model)
}

func (m *MockReporter) ModelFinished(result Result) {
	m.Results = append(m.Results, result)
}

func (m *MockReporter) Finished(summary *Summary) {
	m.Summary = summary
}
