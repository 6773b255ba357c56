package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/scalepilot/scalepilot/internal/domain"
	"github.com/scalepilot/scalepilot/internal/engine"
	"github.com/scalepilot/scalepilot/internal/guardstate"
)

var (
	scoreInputPath string
	scoreFormat    string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one account's audiences from a JSON input file",
	Long: `Score reads an account's audiences (profiles, latest 7d snapshots and
daily history) from a JSON file, runs the decision engine and prints the
recommendations.

Example:
  scalepilot score --input account.json
  scalepilot score --input account.json --format table`,
	RunE: runScore,
}

func init() {
	var flags *pflag.FlagSet = scoreCmd.Flags()
	flags.StringVarP(&scoreInputPath, "input", "i", "", "input JSON file (required)")
	flags.StringVarP(&scoreFormat, "format", "f", "json", "output format: json or table")
	_ = scoreCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(scoreInputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var in engine.RunInput
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}

	eng, err := engine.New(cfg, guardstate.NewMemory(), engine.WithLogger(log.Logger))
	if err != nil {
		return err
	}
	result, err := eng.Run(context.Background(), in)
	if err != nil {
		return fmt.Errorf("scoring run: %w", err)
	}

	switch scoreFormat {
	case "table":
		return printTable(result)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		return fmt.Errorf("unknown format %q (want json or table)", scoreFormat)
	}
}

func printTable(result *domain.RunResult) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AUDIENCE\tACTION\tSCALE%\tBUCKET\tTREND\tSCORE\tCONFIDENCE")
	for _, rec := range result.Recommendations {
		scale := "-"
		if rec.ScalePercentage != nil {
			scale = fmt.Sprintf("%d", *rec.ScalePercentage)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.3f\t%s\n",
			rec.AudienceName, rec.Action, scale, rec.Bucket, rec.Trend, rec.CompositeScore, rec.Confidence)
	}
	if result.Warning != "" {
		fmt.Fprintf(w, "\nwarning: %s\n", result.Warning)
	}
	return w.Flush()
}
