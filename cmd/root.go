package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/roessland/stravasnap/snapshot"
	"github.com/roessland/stravasnap/strava"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stravasnap",
	Short: "Snapshot Strava athlete, activity and gear data to JSON",
	Long: `Stravasnap fetches the authenticated athlete's profile, recent activities and gear
from the Strava API and writes them as timestamped JSON snapshots.

Without a subcommand it snapshots athlete_activities, athlete and gear.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return snapshot.Run(cmd.Context(), loadConfig(nil))
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [model...]",
	Short: "Snapshot selected models",
	Long: `Snapshot the given models, in order. Known models are athlete, athlete_activities and gear.
Unknown models are reported and skipped. Without arguments the default set is snapshotted.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return snapshot.Run(cmd.Context(), loadConfig(args))
	},
}

// loadConfig gathers configuration from flags, environment and the config file
func loadConfig(models []string) snapshot.Config {
	return snapshot.Config{
		ClientID:     viper.GetString("client_id"),
		ClientSecret: viper.GetString("client_secret"),
		RefreshToken: viper.GetString("refresh_token"),
		AuthEndpoint: viper.GetString("authentication_endpoint"),
		BaseURL:      viper.GetString("base_url"),
		DataDir:      viper.GetString("data_dir"),
		TokenCache:   viper.GetString("token_cache"),
		Since:        viper.GetString("since"),
		Models:       models,
		DetailLimit:  viper.GetInt("detail_limit"),
		Pause:        viper.GetDuration("pause"),
		JSONMode:     viper.GetBool("json"),
		Pretty:       viper.GetBool("pretty"),
		FreshToken:   viper.GetBool("fresh_token"),
		InsecureAuth: viper.GetBool("insecure_auth"),
		FailOnError:  viper.GetBool("fail_on_error"),
	}
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Viper defaults
	viper.SetDefault("authentication_endpoint", strava.DefaultTokenURL)
	viper.SetDefault("base_url", strava.DefaultBaseURL)
	viper.SetDefault("data_dir", snapshot.DefaultDataDir)
	viper.SetDefault("token_cache", "~/.stravasnap/token.json")
	viper.SetDefault("since", "1w")
	viper.SetDefault("detail_limit", strava.DefaultDetailLimit)
	viper.SetDefault("pause", strava.DefaultPause)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stravasnap/stravasnap.yaml)")
	flags.String("since", "1w", "List activities since this date or duration (e.g. '2024-01-01', '30d', '2w', 'all')")
	flags.String("data-dir", "", "Directory to write snapshots to (default: data)")
	flags.String("token-cache", "", "Path to the token cache, empty string disables it (default: ~/.stravasnap/token.json)")
	flags.Bool("json", false, "Output structured JSON logs instead of interactive mode")
	flags.Bool("pretty", false, "Indent snapshot JSON")
	flags.Bool("fresh-token", false, "Exchange the refresh token before every request instead of reusing tokens")
	flags.Bool("insecure-auth", false, "Skip TLS certificate verification for the token endpoint")
	flags.Bool("fail-on-error", false, "Exit with an error status when any snapshot fails")

	for key, flag := range map[string]string{
		"since":         "since",
		"data_dir":      "data-dir",
		"token_cache":   "token-cache",
		"json":          "json",
		"pretty":        "pretty",
		"fresh_token":   "fresh-token",
		"insecure_auth": "insecure-auth",
		"fail_on_error": "fail-on-error",
	} {
		viper.BindPFlag(key, flags.Lookup(flag))
	}

	// Bind environment variables
	viper.BindEnv("client_id", "CLIENT_ID", "STRAVASNAP_CLIENT_ID")
	viper.BindEnv("client_secret", "CLIENT_SECRET", "STRAVASNAP_CLIENT_SECRET")
	viper.BindEnv("refresh_token", "REFRESH_TOKEN", "STRAVASNAP_REFRESH_TOKEN")
	viper.BindEnv("authentication_endpoint", "AUTHENTICATION_ENDPOINT", "STRAVASNAP_AUTHENTICATION_ENDPOINT")

	viper.SetEnvPrefix("stravasnap")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(snapshotCmd)
}

func initConfig() {
	loadDotEnv(".env")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in ~/.stravasnap/ directory with name "stravasnap" (without extension).
		viper.AddConfigPath(filepath.Join(home, ".stravasnap"))
		viper.SetConfigName("stravasnap")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in silently (logging is via LOG_LEVEL env var)
	viper.ReadInConfig()
}

// loadDotEnv exports the variables of a dotenv file that are not already set
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not read %s: %v\n", path, err)
		return
	}

	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		os.Setenv(name, env.GetString(key))
	}
}
