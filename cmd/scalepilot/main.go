package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scalepilot/scalepilot/internal/config"
)

var (
	configPath string
	verbose    bool
)

// rootCmd is the base command for the ScalePilot CLI.
var rootCmd = &cobra.Command{
	Use:   "scalepilot",
	Short: "ScalePilot audience recommendation engine",
	Long: `ScalePilot recommends SCALE, HOLD, PAUSE or RETEST for each advertising
audience segment based on recent performance, account-relative benchmarks
and hard guardrails. Every recommendation carries its reasons and risks.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().Timestamp().Logger()
	},
}

func loadConfig() (*config.EngineConfig, error) {
	if configPath == "" {
		cfg := config.DefaultEngineConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(configPath)
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "engine config yaml (defaults apply when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
