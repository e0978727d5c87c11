package normalize

import "time"

// EnrichmentStatus tracks the per-row outcome of the feature enrichment stage.
type EnrichmentStatus string

const (
	EnrichmentPending EnrichmentStatus = "pending"
	EnrichmentOK      EnrichmentStatus = "ok"
	EnrichmentFailed  EnrichmentStatus = "failed"
)

// AudioFeatures holds externally computed numeric features for one track.
// All fields are nullable until enrichment succeeds.
type AudioFeatures struct {
	TrackID          string
	Danceability     *float64
	Energy           *float64
	Loudness         *float64
	Speechiness      *float64
	Acousticness     *float64
	Instrumentalness *float64
	Liveness         *float64
	Valence          *float64
	Tempo            *float64
}

// TrackRow is one normalized track. ArtistIDs preserves the source ordering.
type TrackRow struct {
	TrackID          string
	Name             string
	DurationMS       *int64
	DurationMin      *float64
	Popularity       *int
	AlbumID          string
	ArtistIDs        []string
	AddedAt          string
	EnrichmentStatus EnrichmentStatus
	Features         *AudioFeatures
}

// ArtistRow is one normalized artist, deduplicated across the snapshot.
type ArtistRow struct {
	ArtistID string
	Name     string
	Genres   []string
}

// AlbumRow is one normalized album, deduplicated across the snapshot.
type AlbumRow struct {
	AlbumID     string
	Name        string
	ReleaseDate string
	ArtistIDs   []string
}

// SnapshotRow is the metadata row describing the snapshot itself.
type SnapshotRow struct {
	SnapshotID string
	PlaylistID string
	FetchedAt  time.Time
	TrackCount int
}

// Tables bundles the four normalized entity tables for one snapshot. Track
// order follows the source document; artist and album order follows first
// appearance.
type Tables struct {
	Snapshot SnapshotRow
	Tracks   []TrackRow
	Artists  []ArtistRow
	Albums   []AlbumRow
}

// PendingTrackIDs returns ids of tracks still awaiting enrichment.
func (t *Tables) PendingTrackIDs() []string {
	ids := make([]string, 0, len(t.Tracks))
	for _, track := range t.Tracks {
		if track.EnrichmentStatus == EnrichmentPending {
			ids = append(ids, track.TrackID)
		}
	}
	return ids
}
