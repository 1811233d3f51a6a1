package strava

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ListActivitiesParams are the query parameters of GET /athlete/activities.
// Zero values are omitted.
type ListActivitiesParams struct {
	// Before is an epoch timestamp; only activities before it are returned.
	Before int64 `url:"before,omitempty"`
	// After is an epoch timestamp; only activities after it are returned.
	After   int64 `url:"after,omitempty"`
	Page    int   `url:"page,omitempty"`
	PerPage int   `url:"per_page,omitempty"`
}

type activityParams struct {
	IncludeAllEfforts bool `url:"include_all_efforts"`
}

// SummaryActivity is the part of a listed activity the snapshotter reads.
type SummaryActivity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SportType string    `json:"sport_type"`
	StartDate time.Time `json:"start_date"`
}

// GearRef is a bike or shoe reference embedded in the athlete profile.
type GearRef struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Primary  bool    `json:"primary"`
	Distance float64 `json:"distance"`
}

// AthleteGear holds the gear lists of a detailed athlete.
type AthleteGear struct {
	Bikes []GearRef `json:"bikes"`
	Shoes []GearRef `json:"shoes"`
}

// DecodeAthleteGear reads the bikes and shoes lists from an athlete profile.
// Missing lists decode as empty.
func DecodeAthleteGear(athlete json.RawMessage) (AthleteGear, error) {
	var g AthleteGear
	if err := json.Unmarshal(athlete, &g); err != nil {
		return AthleteGear{}, fmt.Errorf("decode athlete gear: %w", err)
	}
	return g, nil
}

// Fault is the error body returned by the Strava API.
type Fault struct {
	Message string       `json:"message"`
	Errors  []FaultError `json:"errors"`
}

// FaultError describes a single problem in a Fault.
type FaultError struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
}

func (f Fault) String() string {
	if len(f.Errors) == 0 {
		return f.Message
	}

	parts := make([]string, len(f.Errors))
	for i, e := range f.Errors {
		parts[i] = e.Resource + "." + e.Field + " " + e.Code
	}
	return f.Message + " (" + strings.Join(parts, "; ") + ")"
}
