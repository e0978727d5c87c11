package job_test

import (
	"context"
	"testing"
	"time"

	"trackforge/internal/job"
	"trackforge/internal/testsupport"
)

func TestStartRunInsertsAndReuses(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	run, err := store.StartRun(ctx, job.Trigger{SnapshotID: "snap-1", Location: "/tmp/snap-1.json"})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.ID == 0 || run.Status != job.StatusPending {
		t.Fatalf("unexpected new run: %+v", run)
	}
	if run.StartedAt == nil {
		t.Fatal("StartedAt not set")
	}

	// Mark it failed, then re-trigger: the same row is reset, not duplicated.
	now := time.Now().UTC()
	run.Status = job.StatusFailed
	run.ErrorKind = "malformed_snapshot"
	run.ErrorMessage = "boom"
	run.FinishedAt = &now
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	again, err := store.StartRun(ctx, job.Trigger{SnapshotID: "snap-1", Location: "/tmp/snap-1b.json"})
	if err != nil {
		t.Fatalf("StartRun (retrigger): %v", err)
	}
	if again.ID != run.ID {
		t.Fatalf("retrigger created a new row: %d vs %d", again.ID, run.ID)
	}
	if again.Status != job.StatusPending || again.ErrorKind != "" || again.FinishedAt != nil {
		t.Fatalf("retrigger did not reset run: %+v", again)
	}
	if again.Location != "/tmp/snap-1b.json" {
		t.Fatalf("retrigger did not update location: %q", again.Location)
	}
}

func TestUpdateRoundTripsFailedTrackIDs(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	run, err := store.StartRun(ctx, job.Trigger{SnapshotID: "snap-2", Location: "/tmp/snap-2.json"})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	run.PlaylistID = "pl-1"
	run.Status = job.StatusDegraded
	run.Degraded = true
	run.FailedTrackIDs = []string{"trk-7", "trk-9"}
	run.PartitionKey = "pl-1/2026-08-30"
	run.TrackCount = 12
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := store.GetBySnapshotID(ctx, "snap-2")
	if err != nil {
		t.Fatalf("GetBySnapshotID: %v", err)
	}
	if loaded == nil {
		t.Fatal("run not found")
	}
	if !loaded.Degraded || loaded.Status != job.StatusDegraded {
		t.Fatalf("degraded state lost: %+v", loaded)
	}
	if len(loaded.FailedTrackIDs) != 2 || loaded.FailedTrackIDs[0] != "trk-7" {
		t.Fatalf("failed track ids lost: %v", loaded.FailedTrackIDs)
	}
	if loaded.PartitionKey != "pl-1/2026-08-30" || loaded.TrackCount != 12 {
		t.Fatalf("run fields lost: %+v", loaded)
	}
}

func TestGetBySnapshotIDMissing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	run, err := store.GetBySnapshotID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetBySnapshotID: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil for unknown snapshot, got %+v", run)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for _, id := range []string{"snap-a", "snap-b", "snap-c"} {
		if _, err := store.StartRun(ctx, job.Trigger{SnapshotID: id, Location: "/tmp/" + id}); err != nil {
			t.Fatalf("StartRun(%s): %v", id, err)
		}
	}
	// Touch snap-a so it becomes the most recently updated.
	run, err := store.GetBySnapshotID(ctx, "snap-a")
	if err != nil || run == nil {
		t.Fatalf("GetBySnapshotID: %v", err)
	}
	run.Status = job.StatusCommitted
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(recent))
	}
	if recent[0].SnapshotID != "snap-a" {
		t.Fatalf("expected snap-a first, got %s", recent[0].SnapshotID)
	}
}

func TestHealthAggregatesStatuses(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	seed := map[string]job.Status{
		"snap-1": job.StatusCommitted,
		"snap-2": job.StatusDegraded,
		"snap-3": job.StatusFailed,
		"snap-4": job.StatusEnriching,
	}
	for id, status := range seed {
		run, err := store.StartRun(ctx, job.Trigger{SnapshotID: id, Location: "/tmp/" + id})
		if err != nil {
			t.Fatalf("StartRun(%s): %v", id, err)
		}
		run.Status = status
		if err := store.Update(ctx, run); err != nil {
			t.Fatalf("Update(%s): %v", id, err)
		}
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 4 || health.Committed != 1 || health.Degraded != 1 || health.Failed != 1 || health.Processing != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	run, err := store.StartRun(ctx, job.Trigger{SnapshotID: "snap-stuck", Location: "/tmp/snap"})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	run.Status = job.StatusWriting
	run.Stage = string(job.StatusWriting)
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset run, got %d", reset)
	}
	loaded, err := store.GetBySnapshotID(ctx, "snap-stuck")
	if err != nil || loaded == nil {
		t.Fatalf("GetBySnapshotID: %v", err)
	}
	if loaded.Status != job.StatusPending {
		t.Fatalf("run not reset: %s", loaded.Status)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := job.ParseStatus(" Committed "); !ok || status != job.StatusCommitted {
		t.Fatalf("ParseStatus(Committed) = %s, %v", status, ok)
	}
	if _, ok := job.ParseStatus("bogus"); ok {
		t.Fatal("ParseStatus accepted an unknown status")
	}
}
