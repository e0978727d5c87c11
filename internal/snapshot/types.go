package snapshot

import "time"

// Document is one raw capture of playlist state at a point in time. It is
// immutable once read; later stages build their own structures from it.
type Document struct {
	SnapshotID string
	PlaylistID string
	FetchedAt  time.Time
	Tracks     []TrackNode
}

// TrackNode mirrors one track entry from the raw document, including the
// nested album and artist subtrees.
type TrackNode struct {
	ID         string
	Name       string
	DurationMS *int64
	Popularity *int
	AddedAt    string
	Album      *AlbumNode
	Artists    []ArtistNode
}

// AlbumNode mirrors a nested album object. ID may be empty when the source
// lacks a native identifier; the normalizer synthesizes one.
type AlbumNode struct {
	ID          string
	Name        string
	ReleaseDate string
	Artists     []ArtistNode
}

// ArtistNode mirrors a nested artist object.
type ArtistNode struct {
	ID     string
	Name   string
	Genres []string
}
