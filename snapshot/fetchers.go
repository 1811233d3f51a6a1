package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roessland/stravasnap/strava"
)

// GearBundle is the gear snapshot: full gear details grouped by kind
type GearBundle struct {
	Bikes []json.RawMessage `json:"Bikes"`
	Shoes []json.RawMessage `json:"Shoes"`
}

// FetchAthlete returns the authenticated athlete's profile
func (s *Service) FetchAthlete(ctx context.Context) (json.RawMessage, error) {
	athlete, err := s.client.GetAthlete(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch athlete: %w", err)
	}
	return athlete, nil
}

// ListActivityIDs pages through the athlete's activities inside window and
// returns their ids in page order. Listing stops at the first empty page.
func (s *Service) ListActivityIDs(ctx context.Context, window ActivityWindow) ([]int64, error) {
	var ids []int64

	for page := 1; ; page++ {
		activities, err := s.client.ListActivities(ctx, strava.ListActivitiesParams{
			After:   window.AfterUnix(),
			Page:    page,
			PerPage: strava.ActivitiesPerPage,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list activities page %d: %w", page, err)
		}

		s.logger.Debug("listed activities page", "page", page, "count", len(activities))
		if len(activities) == 0 {
			break
		}

		for _, a := range activities {
			ids = append(ids, a.ID)
		}
	}

	return ids, nil
}

// FetchActivityDetails fetches the full detail of every activity in ids, in
// order. The pacer is waited on before and ticked after each request.
func (s *Service) FetchActivityDetails(ctx context.Context, ids []int64) ([]json.RawMessage, error) {
	details := make([]json.RawMessage, 0, len(ids))

	s.progress.Start("Fetching activity details", len(ids))
	defer s.progress.Done()

	for _, id := range ids {
		if err := s.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit before activity %d: %w", id, err)
		}

		detail, err := s.client.GetActivity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch activity %d: %w", id, err)
		}
		details = append(details, detail)
		s.progress.Step()

		if err := s.pacer.Tick(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait after activity %d: %w", id, err)
		}
	}

	return details, nil
}

// FetchActivities lists the activities inside window and fetches each one in full
func (s *Service) FetchActivities(ctx context.Context, window ActivityWindow) ([]json.RawMessage, error) {
	ids, err := s.ListActivityIDs(ctx, window)
	if err != nil {
		return nil, err
	}

	s.logger.Info("found activities", "count", len(ids), "window", window.String())
	return s.FetchActivityDetails(ctx, ids)
}

// FetchGear fetches every shoe and bike listed on the athlete profile
func (s *Service) FetchGear(ctx context.Context) (GearBundle, error) {
	athlete, err := s.FetchAthlete(ctx)
	if err != nil {
		return GearBundle{}, err
	}

	refs, err := strava.DecodeAthleteGear(athlete)
	if err != nil {
		return GearBundle{}, err
	}

	shoes, err := s.fetchGearList(ctx, refs.Shoes)
	if err != nil {
		return GearBundle{}, err
	}
	bikes, err := s.fetchGearList(ctx, refs.Bikes)
	if err != nil {
		return GearBundle{}, err
	}

	return GearBundle{Bikes: bikes, Shoes: shoes}, nil
}

func (s *Service) fetchGearList(ctx context.Context, refs []strava.GearRef) ([]json.RawMessage, error) {
	gear := make([]json.RawMessage, 0, len(refs))
	for _, ref := range refs {
		detail, err := s.client.GetGear(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch gear %s: %w", ref.ID, err)
		}
		gear = append(gear, detail)
	}
	return gear, nil
}
