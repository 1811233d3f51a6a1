package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/roessland/stravasnap/strava"
	"github.com/spf13/viper"
)

// Refreshes the JSON fixtures in strava/testdata/fixtures from the live API.
// Run from the repository root: go run ./strava/testdata/scripts/update-fixtures.go
func main() {
	var (
		dryRun = flag.Bool("dry-run", false, "Show what would be written without making changes")
	)
	flag.Parse()

	initConfig()
	creds := strava.Credentials{
		ClientID:     viper.GetString("client_id"),
		ClientSecret: viper.GetString("client_secret"),
		RefreshToken: viper.GetString("refresh_token"),
		TokenURL:     viper.GetString("authentication_endpoint"),
	}

	if err := creds.Validate(); err != nil {
		home, _ := homedir.Dir()
		configPath := filepath.Join(home, ".stravasnap", "stravasnap.yaml")
		log.Fatalf(`%v. Either:

  Config file at %s:
    client_id: 12345
    client_secret: ...
    refresh_token: ...

  Or environment variables:
    export CLIENT_ID=12345
    export CLIENT_SECRET=...
    export REFRESH_TOKEN=...
`, err, configPath)
	}

	tokens, err := strava.NewTokenProvider(creds)
	if err != nil {
		log.Fatalf("Failed to create token provider: %v", err)
	}
	client := strava.New(tokens)
	ctx := context.Background()

	fixturesDir := filepath.Join("strava", "testdata", "fixtures")
	if err := os.MkdirAll(fixturesDir, 0755); err != nil {
		log.Fatalf("Failed to create fixtures directory: %v", err)
	}

	athlete, err := client.GetAthlete(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch athlete: %v", err)
	}
	write(fixturesDir, "athlete.json", athlete, *dryRun)

	activities, err := client.ListActivities(ctx, strava.ListActivitiesParams{Page: 1, PerPage: 2})
	if err != nil {
		log.Fatalf("Failed to fetch activities: %v", err)
	}
	if len(activities) < 2 {
		log.Fatal("Need at least 2 activities on the account to build the activities fixture.")
	}
	page, err := json.Marshal(activities)
	if err != nil {
		log.Fatalf("Failed to marshal activities: %v", err)
	}
	write(fixturesDir, "activities_page.json", page, *dryRun)

	gear, err := strava.DecodeAthleteGear(athlete)
	if err != nil {
		log.Fatalf("Failed to decode gear: %v", err)
	}
	refs := append(gear.Bikes, gear.Shoes...)
	if len(refs) == 0 {
		fmt.Println("No gear on the account, keeping existing gear.json")
		return
	}
	detail, err := client.GetGear(ctx, refs[0].ID)
	if err != nil {
		log.Fatalf("Failed to fetch gear %s: %v", refs[0].ID, err)
	}
	write(fixturesDir, "gear.json", detail, *dryRun)

	fmt.Printf("\nNext: run 'go test ./strava/...'\n")
}

func write(dir, name string, data []byte, dryRun bool) {
	path := filepath.Join(dir, name)
	if dryRun {
		fmt.Printf("Would create: %s (%d bytes)\n", path, len(data))
		return
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		log.Fatalf("Invalid JSON for %s: %v", name, err)
	}
	if err := os.WriteFile(path, compact.Bytes(), 0644); err != nil {
		log.Fatalf("Failed to write fixture %s: %v", path, err)
	}
	fmt.Printf("✅ Created fixture: %s (%d bytes)\n", path, compact.Len())
}

func initConfig() {
	home, err := homedir.Dir()
	if err != nil {
		log.Printf("Warning: Could not find home directory: %v", err)
	} else {
		configPath := filepath.Join(home, ".stravasnap", "stravasnap.yaml")
		if _, err := os.Stat(configPath); err == nil {
			viper.SetConfigFile(configPath)
			if err := viper.ReadInConfig(); err != nil {
				log.Printf("Warning: Could not read config file: %v", err)
			}
		}
	}

	viper.SetDefault("authentication_endpoint", strava.DefaultTokenURL)
	viper.BindEnv("client_id", "CLIENT_ID")
	viper.BindEnv("client_secret", "CLIENT_SECRET")
	viper.BindEnv("refresh_token", "REFRESH_TOKEN")
	viper.BindEnv("authentication_endpoint", "AUTHENTICATION_ENDPOINT")
}
