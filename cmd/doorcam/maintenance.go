package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/doorcam/internal/eventlog"
	"github.com/ayusman/doorcam/internal/retention"
)

var (
	statsHours  int
	cleanupDays int
	archiveOut  string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent detections from the CSV log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		window := time.Duration(statsHours) * time.Hour
		s, err := eventlog.StatsFile(cfg.CSVPath(), window, time.Now())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Detections in the last %d hours\n", statsHours)
		fmt.Fprintln(out, strings.Repeat("-", 32))
		fmt.Fprintf(out, "Total:          %d\n", s.Total)
		fmt.Fprintf(out, "Allowed:        %d\n", s.Allowed)
		fmt.Fprintf(out, "Intruders:      %d\n", s.Intruder)
		fmt.Fprintf(out, "Unique persons: %d\n", s.UniquePersons)
		fmt.Fprintf(out, "Avg confidence: %.1f%%\n", s.AverageConfidence*100)
		if s.Skipped > 0 {
			fmt.Fprintf(out, "Unreadable rows: %d\n", s.Skipped)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete snapshots older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days := cfg.RetentionDays
		if cmd.Flags().Changed("days") {
			days = cleanupDays
		}
		res, err := retention.Sweep(cfg.DetectionsDir, days, time.Now())
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d snapshots (%d bytes), kept %d\n", res.Deleted, res.Bytes, res.Kept)
		return err
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Zip the detections directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := archiveOut
		if out == "" {
			out = "detections_" + time.Now().Format("20060102_150405") + ".zip"
		}
		n, err := retention.Archive(cfg.DetectionsDir, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Archived %d files to %s\n", n, out)
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsHours, "hours", 24, "window to summarize")
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 7, "retention in days (default: configured retention_days)")
	archiveCmd.Flags().StringVarP(&archiveOut, "output", "o", "", "zip file to write")
}
