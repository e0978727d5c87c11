package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// SnapshotTrack is one track entry in a generated snapshot document.
type SnapshotTrack struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	DurationMS *int64   `json:"duration_ms"`
	Popularity *int     `json:"popularity"`
	AddedAt    string   `json:"added_at,omitempty"`
	AlbumID    string   `json:"-"`
	AlbumName  string   `json:"-"`
	ArtistID   string   `json:"-"`
	ArtistName string   `json:"-"`
	Genres     []string `json:"-"`
}

// WriteSnapshot renders a raw playlist snapshot document to disk and returns
// its path. Every track gets a single artist and an album built from the
// embedded fields, enough structure to exercise normalization end to end.
func WriteSnapshot(t testing.TB, dir, playlistID string, fetchedAt time.Time, tracks []SnapshotTrack) string {
	t.Helper()

	entries := make([]map[string]any, 0, len(tracks))
	for _, track := range tracks {
		artist := map[string]any{"id": track.ArtistID, "name": track.ArtistName}
		if len(track.Genres) > 0 {
			artist["genres"] = track.Genres
		}
		entries = append(entries, map[string]any{
			"added_at": track.AddedAt,
			"track": map[string]any{
				"id":          track.ID,
				"name":        track.Name,
				"duration_ms": track.DurationMS,
				"popularity":  track.Popularity,
				"album": map[string]any{
					"id":      track.AlbumID,
					"name":    track.AlbumName,
					"artists": []any{artist},
				},
				"artists": []any{artist},
			},
		})
	}
	doc := map[string]any{
		"playlist_id": playlistID,
		"fetched_at":  fetchedAt.UTC().Format(time.RFC3339Nano),
		"tracks":      entries,
	}
	return WriteSnapshotJSON(t, dir, doc)
}

// WriteSnapshotJSON writes an arbitrary document as snapshot JSON, for tests
// that need malformed or unusual shapes.
func WriteSnapshotJSON(t testing.TB, dir string, doc any) string {
	t.Helper()

	payload, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("snapshot-%d.json", time.Now().UnixNano()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	return path
}

// DefaultTracks returns a small representative track set: three tracks on
// two albums by two artists.
func DefaultTracks() []SnapshotTrack {
	dur1, dur2, dur3 := int64(210000), int64(185500), int64(240000)
	pop1, pop2 := 64, 40
	return []SnapshotTrack{
		{ID: "trk-1", Name: "First Song", DurationMS: &dur1, Popularity: &pop1, AddedAt: "2026-08-01T00:00:00Z", AlbumID: "alb-1", AlbumName: "Album One", ArtistID: "art-1", ArtistName: "Artist One", Genres: []string{"ambient"}},
		{ID: "trk-2", Name: "Second Song", DurationMS: &dur2, Popularity: &pop2, AddedAt: "2026-08-02T00:00:00Z", AlbumID: "alb-1", AlbumName: "Album One", ArtistID: "art-1", ArtistName: "Artist One"},
		{ID: "trk-3", Name: "Third Song", DurationMS: &dur3, AddedAt: "2026-08-03T00:00:00Z", AlbumID: "alb-2", AlbumName: "Album Two", ArtistID: "art-2", ArtistName: "Artist Two"},
	}
}
