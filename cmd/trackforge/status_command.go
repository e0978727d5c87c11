package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"trackforge/internal/job"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent transform runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := job.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer store.Close()

			var runs []*job.Run
			if statusFilter != "" {
				status, ok := job.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				runs, err = store.RunsByStatus(cmd.Context(), status)
			} else {
				runs, err = store.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			health, err := store.Health(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeStatusJSON(cmd, runs, health)
			}
			printStatus(cmd.OutOrStdout(), runs, health)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show runs with this status (e.g. failed, degraded)")
	return cmd
}

func writeStatusJSON(cmd *cobra.Command, runs []*job.Run, health job.HealthSummary) error {
	type jsonRun struct {
		SnapshotID     string   `json:"snapshot_id"`
		PlaylistID     string   `json:"playlist_id,omitempty"`
		Status         string   `json:"status"`
		Partition      string   `json:"partition,omitempty"`
		TrackCount     int      `json:"track_count"`
		FailedTrackIDs []string `json:"failed_track_ids,omitempty"`
		ErrorKind      string   `json:"error_kind,omitempty"`
		ErrorMessage   string   `json:"error_message,omitempty"`
		UpdatedAt      string   `json:"updated_at"`
	}
	views := make([]jsonRun, 0, len(runs))
	for _, run := range runs {
		views = append(views, jsonRun{
			SnapshotID:     run.SnapshotID,
			PlaylistID:     run.PlaylistID,
			Status:         string(run.Status),
			Partition:      run.PartitionKey,
			TrackCount:     run.TrackCount,
			FailedTrackIDs: run.FailedTrackIDs,
			ErrorKind:      run.ErrorKind,
			ErrorMessage:   run.ErrorMessage,
			UpdatedAt:      run.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"runs": views,
		"summary": map[string]int{
			"total":      health.Total,
			"pending":    health.Pending,
			"processing": health.Processing,
			"committed":  health.Committed,
			"degraded":   health.Degraded,
			"failed":     health.Failed,
		},
	})
}

func printStatus(out io.Writer, runs []*job.Run, health job.HealthSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No transform runs recorded")
		return
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		detail := run.PartitionKey
		if run.Status == job.StatusFailed {
			detail = run.ErrorKind
		} else if run.Degraded {
			detail = fmt.Sprintf("%s (%d tracks unenriched)", run.PartitionKey, len(run.FailedTrackIDs))
		}
		rows = append(rows, []string{
			run.SnapshotID,
			run.PlaylistID,
			formatStatusLabel(string(run.Status)),
			fmt.Sprintf("%d", run.TrackCount),
			detail,
			formatDisplayTime(run.UpdatedAt),
		})
	}
	fmt.Fprintln(out, renderRunTable(
		[]string{"Snapshot", "Playlist", "Status", "Tracks", "Detail", "Updated"},
		rows,
		3,
	))

	summary := fmt.Sprintf("%d total: %d committed, %d degraded, %d failed, %d processing, %d pending",
		health.Total, health.Committed, health.Degraded, health.Failed, health.Processing, health.Pending)
	if shouldColorize(out) && health.Failed > 0 {
		summary = "\x1b[33m" + summary + "\x1b[0m"
	}
	fmt.Fprintln(out, summary)
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Local().Format("2006-01-02 15:04")
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
