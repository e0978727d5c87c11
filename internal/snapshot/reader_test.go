package snapshot_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"trackforge/internal/services"
	"trackforge/internal/snapshot"
)

const sampleDoc = `{
  "playlist_id": "pl-top-50",
  "fetched_at": "2026-08-30T06:00:00Z",
  "tracks": [
    {
      "added_at": "2026-08-29T10:00:00Z",
      "track": {
        "id": "trk-1",
        "name": "First Song",
        "duration_ms": 210000,
        "popularity": 82,
        "album": {
          "id": "alb-1",
          "name": "First Album",
          "release_date": "2024-05-01",
          "artists": [{"id": "art-1", "name": "The Artist"}]
        },
        "artists": [{"id": "art-1", "name": "The Artist", "genres": ["pop"]}]
      }
    },
    {
      "id": "trk-2",
      "name": "Bare Entry",
      "duration_ms": 180000
    }
  ]
}`

func TestReadParsesDocument(t *testing.T) {
	doc, err := snapshot.Read(strings.NewReader(sampleDoc), "snap-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if doc.SnapshotID != "snap-1" {
		t.Fatalf("unexpected snapshot id %q", doc.SnapshotID)
	}
	if doc.PlaylistID != "pl-top-50" {
		t.Fatalf("unexpected playlist id %q", doc.PlaylistID)
	}
	want := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	if !doc.FetchedAt.Equal(want) {
		t.Fatalf("unexpected fetched_at %v", doc.FetchedAt)
	}
	if len(doc.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(doc.Tracks))
	}

	first := doc.Tracks[0]
	if first.ID != "trk-1" || first.Album == nil || first.Album.ID != "alb-1" {
		t.Fatalf("unexpected first track: %#v", first)
	}
	if first.DurationMS == nil || *first.DurationMS != 210000 {
		t.Fatalf("unexpected duration: %#v", first.DurationMS)
	}
	if len(first.Artists) != 1 || first.Artists[0].ID != "art-1" {
		t.Fatalf("unexpected artists: %#v", first.Artists)
	}

	// Bare entries without the playlist-item wrapper still parse.
	second := doc.Tracks[1]
	if second.ID != "trk-2" || second.Album != nil {
		t.Fatalf("unexpected second track: %#v", second)
	}
	if second.Popularity != nil {
		t.Fatal("expected absent popularity to stay nil")
	}
}

func TestReadRejectsMalformedDocuments(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "{nope"},
		{"missing playlist id", `{"fetched_at": "2026-08-30T06:00:00Z", "tracks": []}`},
		{"missing fetched_at", `{"playlist_id": "pl", "tracks": []}`},
		{"bad fetched_at", `{"playlist_id": "pl", "fetched_at": "yesterday", "tracks": []}`},
		{"missing tracks", `{"playlist_id": "pl", "fetched_at": "2026-08-30T06:00:00Z"}`},
		{"track without id", `{"playlist_id": "pl", "fetched_at": "2026-08-30T06:00:00Z", "tracks": [{"name": "anon"}]}`},
		{"wrapped track without id", `{"playlist_id": "pl", "fetched_at": "2026-08-30T06:00:00Z", "tracks": [{"track": {"name": "anon"}}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := snapshot.Read(strings.NewReader(tc.body), "snap-1")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, services.ErrMalformedSnapshot) {
				t.Fatalf("expected malformed snapshot marker, got %v", err)
			}
		})
	}
}

func TestReadRequiresSnapshotID(t *testing.T) {
	_, err := snapshot.Read(strings.NewReader(sampleDoc), "  ")
	if !errors.Is(err, services.ErrMalformedSnapshot) {
		t.Fatalf("expected malformed snapshot marker, got %v", err)
	}
}

func TestReadAcceptsEmptyTrackList(t *testing.T) {
	doc, err := snapshot.Read(strings.NewReader(`{"playlist_id": "pl", "fetched_at": "2026-08-30T06:00:00Z", "tracks": []}`), "snap-2")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(doc.Tracks) != 0 {
		t.Fatalf("expected empty track list, got %d", len(doc.Tracks))
	}
}
