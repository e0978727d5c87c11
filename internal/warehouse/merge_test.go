package warehouse

import (
	"testing"
	"time"
)

func rec(key, snapshotID string, fetchedAt time.Time, name string) Record {
	return Record{
		Key:        key,
		SnapshotID: snapshotID,
		FetchedAt:  fetchedAt,
		Fields:     []string{key, name, snapshotID, fetchedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func TestMergeLaterFetchedAtWins(t *testing.T) {
	early := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	late := early.Add(2 * time.Hour)

	existing := []Record{
		rec("trk-1", "snap-1", early, "old name"),
		rec("trk-2", "snap-1", early, "untouched"),
	}
	candidate := []Record{
		rec("trk-1", "snap-2", late, "new name"),
		rec("trk-3", "snap-2", late, "brand new"),
	}

	merged := mergeRecords(existing, candidate)
	if len(merged) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(merged))
	}
	if merged[0].SnapshotID != "snap-2" || merged[0].Fields[1] != "new name" {
		t.Fatalf("expected candidate to win collision, got %+v", merged[0])
	}
	if merged[1].SnapshotID != "snap-1" {
		t.Fatalf("expected non-colliding prior row intact, got %+v", merged[1])
	}
	if merged[2].Key != "trk-3" {
		t.Fatalf("expected new key appended, got %+v", merged[2])
	}
}

func TestMergeEarlierFetchedAtLoses(t *testing.T) {
	early := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	late := early.Add(2 * time.Hour)

	existing := []Record{rec("trk-1", "snap-2", late, "current")}
	candidate := []Record{rec("trk-1", "snap-1", early, "stale")}

	merged := mergeRecords(existing, candidate)
	if len(merged) != 1 || merged[0].SnapshotID != "snap-2" {
		t.Fatalf("expected incumbent to survive, got %+v", merged)
	}
}

func TestMergeTieBreaksOnSnapshotID(t *testing.T) {
	at := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)

	existing := []Record{rec("trk-1", "snap-a", at, "a")}
	candidate := []Record{rec("trk-1", "snap-b", at, "b")}
	merged := mergeRecords(existing, candidate)
	if merged[0].SnapshotID != "snap-b" {
		t.Fatalf("expected lexically greater snapshot to win tie, got %+v", merged[0])
	}

	// And the outcome is the same regardless of which side is incumbent.
	existing = []Record{rec("trk-1", "snap-b", at, "b")}
	candidate = []Record{rec("trk-1", "snap-a", at, "a")}
	merged = mergeRecords(existing, candidate)
	if merged[0].SnapshotID != "snap-b" {
		t.Fatalf("expected deterministic tie-break, got %+v", merged[0])
	}
}

func TestMergeNeverProducesDuplicateKeys(t *testing.T) {
	at := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	existing := []Record{
		rec("trk-1", "snap-1", at, "one"),
		rec("trk-1", "snap-1", at, "dup in source"),
	}
	candidate := []Record{
		rec("trk-1", "snap-2", at.Add(time.Hour), "winner"),
		rec("trk-2", "snap-2", at.Add(time.Hour), "new"),
	}

	merged := mergeRecords(existing, candidate)
	seen := map[string]int{}
	for _, record := range merged {
		seen[record.Key]++
	}
	for key, count := range seen {
		if count != 1 {
			t.Fatalf("duplicate key %s appears %d times", key, count)
		}
	}
}

func TestGroupBySnapshotPreservesOrder(t *testing.T) {
	at := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	records := []Record{
		rec("trk-1", "snap-1", at, "one"),
		rec("trk-2", "snap-2", at, "two"),
		rec("trk-3", "snap-1", at, "three"),
	}
	grouped := groupBySnapshot(records)
	if len(grouped["snap-1"]) != 2 || grouped["snap-1"][1].Key != "trk-3" {
		t.Fatalf("unexpected grouping: %+v", grouped)
	}
}
