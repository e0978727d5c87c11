package enrich_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"trackforge/internal/enrich"
	"trackforge/internal/normalize"
	"trackforge/internal/retry"
	"trackforge/internal/services"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, ids []string) ([]*normalize.AudioFeatures, error)
}

func (f *fakeSource) AudioFeatures(_ context.Context, ids []string) ([]*normalize.AudioFeatures, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, ids)
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func featuresFor(ids []string) []*normalize.AudioFeatures {
	out := make([]*normalize.AudioFeatures, 0, len(ids))
	for _, id := range ids {
		tempo := 120.0
		out = append(out, &normalize.AudioFeatures{TrackID: id, Tempo: &tempo})
	}
	return out
}

func tablesWithTracks(n int) *normalize.Tables {
	tables := &normalize.Tables{}
	for i := 0; i < n; i++ {
		tables.Tracks = append(tables.Tracks, normalize.TrackRow{
			TrackID:          fmt.Sprintf("trk-%02d", i),
			EnrichmentStatus: normalize.EnrichmentPending,
		})
	}
	return tables
}

func testConfig(batchSize, workers int) enrich.Config {
	return enrich.Config{
		BatchSize:  batchSize,
		Workers:    workers,
		RatePerSec: 1000,
		Burst:      1000,
		Retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	}
}

func TestEnrichAllSucceed(t *testing.T) {
	source := &fakeSource{fn: func(_ int, ids []string) ([]*normalize.AudioFeatures, error) {
		return featuresFor(ids), nil
	}}
	tables := tablesWithTracks(10)

	report, err := enrich.New(source, testConfig(3, 2), nil).Enrich(context.Background(), tables)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if report.Requested != 10 || report.Enriched != 10 || len(report.FailedTrackIDs) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if source.callCount() != 4 {
		t.Fatalf("expected 4 batches for 10 tracks at size 3, got %d calls", source.callCount())
	}
	for _, track := range tables.Tracks {
		if track.EnrichmentStatus != normalize.EnrichmentOK || track.Features == nil {
			t.Fatalf("track %s not enriched: %+v", track.TrackID, track)
		}
	}
}

func TestEnrichBatchFailureDegradesOnlyItsRows(t *testing.T) {
	source := &fakeSource{fn: func(_ int, ids []string) ([]*normalize.AudioFeatures, error) {
		for _, id := range ids {
			if id == "trk-02" {
				return nil, errors.New("ids rejected")
			}
		}
		return featuresFor(ids), nil
	}}
	tables := tablesWithTracks(6)

	report, err := enrich.New(source, testConfig(2, 1), nil).Enrich(context.Background(), tables)
	if err != nil {
		t.Fatalf("partial failure must not fail the stage: %v", err)
	}
	if report.Unavailable {
		t.Fatal("partial failure must not flag unavailable")
	}
	if len(report.FailedTrackIDs) != 2 {
		t.Fatalf("expected 2 failed tracks, got %v", report.FailedTrackIDs)
	}
	for _, track := range tables.Tracks {
		switch track.TrackID {
		case "trk-02", "trk-03":
			if track.EnrichmentStatus != normalize.EnrichmentFailed || track.Features != nil {
				t.Fatalf("expected failed row %s, got %+v", track.TrackID, track)
			}
		default:
			if track.EnrichmentStatus != normalize.EnrichmentOK {
				t.Fatalf("expected enriched row %s, got %+v", track.TrackID, track)
			}
		}
	}
}

func TestEnrichMissingResponsesAreFailed(t *testing.T) {
	source := &fakeSource{fn: func(_ int, ids []string) ([]*normalize.AudioFeatures, error) {
		// The service omits unknown ids rather than erroring.
		out := featuresFor(ids)
		out[0] = nil
		return out, nil
	}}
	tables := tablesWithTracks(4)

	report, err := enrich.New(source, testConfig(4, 1), nil).Enrich(context.Background(), tables)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if len(report.FailedTrackIDs) != 1 || report.FailedTrackIDs[0] != "trk-00" {
		t.Fatalf("unexpected failed ids: %v", report.FailedTrackIDs)
	}
	if tables.Tracks[0].EnrichmentStatus != normalize.EnrichmentFailed {
		t.Fatalf("expected trk-00 failed, got %q", tables.Tracks[0].EnrichmentStatus)
	}
}

func TestEnrichSystemicFailureDegradesEverything(t *testing.T) {
	source := &fakeSource{fn: func(_ int, _ []string) ([]*normalize.AudioFeatures, error) {
		return nil, services.Wrap(services.ErrEnrichmentUnavailable, "enriching", "auth", "invalid credentials", nil)
	}}
	tables := tablesWithTracks(8)

	report, err := enrich.New(source, testConfig(2, 2), nil).Enrich(context.Background(), tables)
	if !errors.Is(err, services.ErrEnrichmentUnavailable) {
		t.Fatalf("expected unavailable marker, got %v", err)
	}
	if !report.Unavailable {
		t.Fatal("expected unavailable report")
	}
	if len(report.FailedTrackIDs) != 8 {
		t.Fatalf("expected all 8 tracks failed, got %v", report.FailedTrackIDs)
	}
	for _, track := range tables.Tracks {
		if track.EnrichmentStatus != normalize.EnrichmentFailed || track.Features != nil {
			t.Fatalf("expected degraded row, got %+v", track)
		}
	}
}

func TestEnrichRetriesTransientErrors(t *testing.T) {
	source := &fakeSource{fn: func(call int, ids []string) ([]*normalize.AudioFeatures, error) {
		if call < 3 {
			return nil, services.Wrap(services.ErrTransient, "enriching", "fetch", "rate limited", nil)
		}
		return featuresFor(ids), nil
	}}
	tables := tablesWithTracks(2)

	report, err := enrich.New(source, testConfig(2, 1), nil).Enrich(context.Background(), tables)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if report.Enriched != 2 {
		t.Fatalf("expected retried batch to succeed, report: %+v", report)
	}
	if source.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", source.callCount())
	}
}

func TestEnrichExhaustedRetriesArePartialNotSystemic(t *testing.T) {
	source := &fakeSource{fn: func(_ int, ids []string) ([]*normalize.AudioFeatures, error) {
		if ids[0] == "trk-00" {
			return nil, services.Wrap(services.ErrTransient, "enriching", "fetch", "timeout", nil)
		}
		return featuresFor(ids), nil
	}}
	tables := tablesWithTracks(4)

	report, err := enrich.New(source, testConfig(2, 1), nil).Enrich(context.Background(), tables)
	if err != nil {
		t.Fatalf("exhausted retries must stay partial: %v", err)
	}
	if report.Unavailable {
		t.Fatal("exhausted retries must not flag unavailable")
	}
	if len(report.FailedTrackIDs) != 2 {
		t.Fatalf("expected first batch failed, got %v", report.FailedTrackIDs)
	}
}

func TestEnrichNoPendingTracksIsNoop(t *testing.T) {
	source := &fakeSource{fn: func(_ int, ids []string) ([]*normalize.AudioFeatures, error) {
		return featuresFor(ids), nil
	}}
	tables := tablesWithTracks(2)
	tables.Tracks[0].EnrichmentStatus = normalize.EnrichmentOK
	tables.Tracks[1].EnrichmentStatus = normalize.EnrichmentFailed

	report, err := enrich.New(source, testConfig(2, 1), nil).Enrich(context.Background(), tables)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if report.Requested != 0 || source.callCount() != 0 {
		t.Fatalf("expected no calls, report %+v calls %d", report, source.callCount())
	}
}
