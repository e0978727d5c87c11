package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trackforge/internal/config"
	"trackforge/internal/job"
	"trackforge/internal/logging"
	"trackforge/internal/services/spotify"
	"trackforge/internal/staging"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var snapshotID string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run <snapshot-file>",
		Short: "Transform one playlist snapshot into the warehouse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			location, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve snapshot path: %w", err)
			}
			id := strings.TrimSpace(snapshotID)
			if id == "" {
				id = snapshotIDFromPath(location)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			// Leftovers from crashed commits age out before new work starts.
			staleAge := time.Duration(cfg.Writer.StaleStagingHours) * time.Hour
			if staleAge > 0 {
				staging.CleanStale(cfg.Paths.StagingDir, staleAge, logger)
			}

			store, err := job.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer store.Close()

			source, err := spotify.NewClient(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.TokenURL, logger)
			if err != nil {
				return err
			}

			runner := job.NewRunner(cfg, store, source, logger)
			report, runErr := runner.Run(cmd.Context(), job.Trigger{SnapshotID: id, Location: location})
			if report == nil {
				report = &job.Report{SnapshotID: id, Status: job.StatusFailed}
			}

			if jsonOutput {
				payload := map[string]any{
					"snapshot_id": id,
					"status":      string(report.Status),
				}
				if report.Status != job.StatusFailed {
					payload["playlist_id"] = report.PlaylistID
					payload["partition"] = report.PartitionKey
					payload["track_count"] = report.TrackCount
					payload["failed_track_ids"] = report.FailedTrackIDs
					payload["replayed"] = report.Replayed
				}
				if runErr != nil {
					payload["error"] = runErr.Error()
				}
				if err := writeJSON(cmd.OutOrStdout(), payload); err != nil {
					return err
				}
				return runErr
			}

			out := cmd.OutOrStdout()
			if runErr != nil {
				fmt.Fprintf(out, "Snapshot %s failed: %v\n", id, runErr)
				return runErr
			}
			printRunReport(out, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshotID, "snapshot-id", "", "Snapshot identifier (defaults to the file name without extension)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the run report as JSON")
	return cmd
}

func printRunReport(out interface{ Write([]byte) (int, error) }, report *job.Report) {
	switch report.Status {
	case job.StatusDegraded:
		fmt.Fprintf(out, "Snapshot %s committed to %s with degraded enrichment (%d of %d tracks missing features)\n",
			report.SnapshotID, report.PartitionKey, len(report.FailedTrackIDs), report.TrackCount)
	default:
		verb := "committed to"
		if report.Replayed {
			verb = "already committed to"
		}
		fmt.Fprintf(out, "Snapshot %s %s %s (%d tracks)\n", report.SnapshotID, verb, report.PartitionKey, report.TrackCount)
	}
}

func snapshotIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
