package normalize_test

import (
	"errors"
	"testing"
	"time"

	"trackforge/internal/normalize"
	"trackforge/internal/services"
	"trackforge/internal/snapshot"
)

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }

func artistNode(id, name string) snapshot.ArtistNode {
	return snapshot.ArtistNode{ID: id, Name: name}
}

func sampleDocument() *snapshot.Document {
	shared := artistNode("art-shared", "Shared Artist")
	unique := artistNode("art-unique", "Unique Artist")
	return &snapshot.Document{
		SnapshotID: "snap-1",
		PlaylistID: "pl-1",
		FetchedAt:  time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC),
		Tracks: []snapshot.TrackNode{
			{
				ID:         "trk-a",
				Name:       "Track A",
				DurationMS: int64p(210000),
				Popularity: intp(80),
				Album:      &snapshot.AlbumNode{ID: "alb-a", Name: "Album A", Artists: []snapshot.ArtistNode{shared}},
				Artists:    []snapshot.ArtistNode{shared},
			},
			{
				ID:         "trk-b",
				Name:       "Track B",
				DurationMS: int64p(185500),
				Album:      &snapshot.AlbumNode{ID: "alb-b", Name: "Album B", Artists: []snapshot.ArtistNode{shared}},
				Artists:    []snapshot.ArtistNode{shared},
			},
			{
				ID:         "trk-c",
				Name:       "Track C",
				DurationMS: int64p(95000),
				Album:      &snapshot.AlbumNode{ID: "alb-c", Name: "Album C", Artists: []snapshot.ArtistNode{unique}},
				Artists:    []snapshot.ArtistNode{unique},
			},
		},
	}
}

func TestNormalizeDeduplicatesEntities(t *testing.T) {
	tables, err := normalize.Normalize(sampleDocument())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(tables.Tracks) != 3 {
		t.Fatalf("expected 3 track rows, got %d", len(tables.Tracks))
	}
	if len(tables.Artists) != 2 {
		t.Fatalf("expected 2 artist rows, got %d", len(tables.Artists))
	}
	if len(tables.Albums) != 3 {
		t.Fatalf("expected 3 album rows, got %d", len(tables.Albums))
	}
	if tables.Snapshot.TrackCount != 3 {
		t.Fatalf("expected track count 3, got %d", tables.Snapshot.TrackCount)
	}
	for _, track := range tables.Tracks {
		if track.EnrichmentStatus != normalize.EnrichmentPending {
			t.Fatalf("expected pending enrichment, got %q", track.EnrichmentStatus)
		}
	}
}

func TestNormalizeDerivesDurationMinutes(t *testing.T) {
	tables, err := normalize.Normalize(sampleDocument())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if tables.Tracks[0].DurationMin == nil || *tables.Tracks[0].DurationMin != 3.5 {
		t.Fatalf("expected 210000ms -> 3.5min, got %#v", tables.Tracks[0].DurationMin)
	}
	if tables.Tracks[1].DurationMin == nil || *tables.Tracks[1].DurationMin != 3.09 {
		t.Fatalf("expected 185500ms -> 3.09min, got %#v", tables.Tracks[1].DurationMin)
	}
}

func TestNormalizeMissingOptionalFieldsDegradeToNull(t *testing.T) {
	doc := &snapshot.Document{
		SnapshotID: "snap-2",
		PlaylistID: "pl-1",
		FetchedAt:  time.Now().UTC(),
		Tracks: []snapshot.TrackNode{
			{ID: "trk-min", Name: "Minimal"},
		},
	}
	tables, err := normalize.Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	row := tables.Tracks[0]
	if row.DurationMS != nil || row.DurationMin != nil || row.Popularity != nil {
		t.Fatalf("expected null optional fields, got %#v", row)
	}
	if row.AlbumID != "" {
		t.Fatalf("expected empty album reference, got %q", row.AlbumID)
	}
}

func TestNormalizeSynthesizesStableIDs(t *testing.T) {
	doc := sampleDocument()
	doc.Tracks[0].Album = &snapshot.AlbumNode{Name: "No ID Album"}
	doc.Tracks[0].Artists = []snapshot.ArtistNode{{Name: "No ID Artist"}}

	first, err := normalize.Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	second, err := normalize.Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if first.Tracks[0].AlbumID == "" || first.Tracks[0].AlbumID != second.Tracks[0].AlbumID {
		t.Fatalf("expected stable synthetic album id, got %q vs %q", first.Tracks[0].AlbumID, second.Tracks[0].AlbumID)
	}
	if first.Tracks[0].ArtistIDs[0] != second.Tracks[0].ArtistIDs[0] {
		t.Fatal("expected stable synthetic artist id")
	}
	if got := normalize.SyntheticID("album", "  No   ID Album ", "trk-a"); got != normalize.SyntheticID("album", "no id album", "trk-a") {
		t.Fatalf("expected canonicalized names to collide, got %q", got)
	}
}

func TestNormalizeFailsOnUnresolvableEntity(t *testing.T) {
	doc := sampleDocument()
	doc.Tracks[1].Artists = []snapshot.ArtistNode{{}}

	_, err := normalize.Normalize(doc)
	if err == nil {
		t.Fatal("expected normalization error")
	}
	if !errors.Is(err, services.ErrNormalization) {
		t.Fatalf("expected normalization marker, got %v", err)
	}
}

func TestCheckClosureDetectsDanglingReferences(t *testing.T) {
	tables, err := normalize.Normalize(sampleDocument())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	tables.Tracks[0].ArtistIDs = append(tables.Tracks[0].ArtistIDs, "art-ghost")
	if err := normalize.CheckClosure(tables); !errors.Is(err, services.ErrNormalization) {
		t.Fatalf("expected closure violation, got %v", err)
	}
}

func TestPendingTrackIDs(t *testing.T) {
	tables, err := normalize.Normalize(sampleDocument())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	tables.Tracks[1].EnrichmentStatus = normalize.EnrichmentOK

	pending := tables.PendingTrackIDs()
	if len(pending) != 2 || pending[0] != "trk-a" || pending[1] != "trk-c" {
		t.Fatalf("unexpected pending ids: %v", pending)
	}
}
