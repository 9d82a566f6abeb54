package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/FranksOps/profilematch/internal/report"
	"github.com/FranksOps/profilematch/internal/storage"
	"github.com/FranksOps/profilematch/internal/storage/sinks"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize stored match results",
	Long: `Report reads a result sink written by match and prints how many people
were confirmed, how often the engines disagreed, and how many links each
engine found.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringP("output", "o", "results.csv", "result file or database DSN to read")
	reportCmd.Flags().String("sink", "", "result sink: csv, ndjson, sqlite or postgres (default: from --output)")
	reportCmd.Flags().String("format", "text", "report format: text, json or html")
	reportCmd.Flags().String("run-id", "", "only include rows from this run")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	target := settings.GetString("output")
	kind, err := sinks.ParseKind(settings.GetString("sink"), target)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	runID, _ := cmd.Flags().GetString("run-id")
	if runID != "" && kind == sinks.KindCSV {
		return errors.New("--run-id needs an ndjson, sqlite or postgres sink: CSV results do not record run ids")
	}

	rows, err := sinks.Read(cmd.Context(), kind, target, storage.Filter{RunID: runID})
	if err != nil {
		return err
	}
	return report.Write(cmd.OutOrStdout(), format, report.Summarize(rows))
}
