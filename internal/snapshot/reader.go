package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"trackforge/internal/services"
)

const readerStage = "reading"

type rawDocument struct {
	PlaylistID string     `json:"playlist_id"`
	FetchedAt  string     `json:"fetched_at"`
	Tracks     []rawEntry `json:"tracks"`
}

// rawEntry tolerates both the wrapped playlist-item shape
// {"added_at": ..., "track": {...}} and a bare track object.
type rawEntry struct {
	AddedAt string    `json:"added_at"`
	Track   *rawTrack `json:"track"`
	rawTrack
}

type rawTrack struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	DurationMS *int64      `json:"duration_ms"`
	Popularity *int        `json:"popularity"`
	Album      *rawAlbum   `json:"album"`
	Artists    []rawArtist `json:"artists"`
}

type rawAlbum struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	ReleaseDate string      `json:"release_date"`
	Artists     []rawArtist `json:"artists"`
}

type rawArtist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
}

// Load reads and validates the snapshot document at path.
func Load(path, snapshotID string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrMalformedSnapshot, readerStage, "open snapshot", path, err)
	}
	defer file.Close()
	return Read(file, snapshotID)
}

// Read parses and validates one raw snapshot document. It fails with a
// malformed-snapshot error when required fields are absent or any track entry
// lacks an identifiable id.
func Read(r io.Reader, snapshotID string) (*Document, error) {
	snapshotID = strings.TrimSpace(snapshotID)
	if snapshotID == "" {
		return nil, services.Wrap(services.ErrMalformedSnapshot, readerStage, "validate trigger", "snapshot_id is required", nil)
	}

	var raw rawDocument
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&raw); err != nil {
		return nil, services.Wrap(services.ErrMalformedSnapshot, readerStage, "decode document", "", err)
	}

	if strings.TrimSpace(raw.PlaylistID) == "" {
		return nil, services.Wrap(services.ErrMalformedSnapshot, readerStage, "validate document", "playlist_id is required", nil)
	}
	if strings.TrimSpace(raw.FetchedAt) == "" {
		return nil, services.Wrap(services.ErrMalformedSnapshot, readerStage, "validate document", "fetched_at is required", nil)
	}
	fetchedAt, err := parseTimestamp(raw.FetchedAt)
	if err != nil {
		return nil, services.Wrap(services.ErrMalformedSnapshot, readerStage, "validate document", "fetched_at is not a timestamp", err)
	}
	if raw.Tracks == nil {
		return nil, services.Wrap(services.ErrMalformedSnapshot, readerStage, "validate document", "tracks list is required", nil)
	}

	doc := &Document{
		SnapshotID: snapshotID,
		PlaylistID: strings.TrimSpace(raw.PlaylistID),
		FetchedAt:  fetchedAt.UTC(),
		Tracks:     make([]TrackNode, 0, len(raw.Tracks)),
	}

	for i, entry := range raw.Tracks {
		track := entry.Track
		if track == nil {
			track = &entry.rawTrack
		}
		if strings.TrimSpace(track.ID) == "" {
			return nil, services.Wrap(
				services.ErrMalformedSnapshot,
				readerStage,
				"validate tracks",
				fmt.Sprintf("track entry %d has no identifiable id", i),
				nil,
			)
		}
		doc.Tracks = append(doc.Tracks, convertTrack(track, entry.AddedAt))
	}

	return doc, nil
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func convertTrack(track *rawTrack, addedAt string) TrackNode {
	node := TrackNode{
		ID:         strings.TrimSpace(track.ID),
		Name:       track.Name,
		DurationMS: track.DurationMS,
		Popularity: track.Popularity,
		AddedAt:    addedAt,
		Artists:    convertArtists(track.Artists),
	}
	if track.Album != nil {
		node.Album = &AlbumNode{
			ID:          strings.TrimSpace(track.Album.ID),
			Name:        track.Album.Name,
			ReleaseDate: track.Album.ReleaseDate,
			Artists:     convertArtists(track.Album.Artists),
		}
	}
	return node
}

func convertArtists(artists []rawArtist) []ArtistNode {
	if len(artists) == 0 {
		return nil
	}
	out := make([]ArtistNode, 0, len(artists))
	for _, artist := range artists {
		out = append(out, ArtistNode{
			ID:     strings.TrimSpace(artist.ID),
			Name:   artist.Name,
			Genres: artist.Genres,
		})
	}
	return out
}
