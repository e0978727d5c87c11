package normalize

import (
	"fmt"
	"math"
	"strings"

	"trackforge/internal/services"
	"trackforge/internal/snapshot"
)

const normalizerStage = "normalizing"

// Normalize flattens a validated snapshot tree into referentially closed
// entity tables. Repeated entities are deduplicated by id; entities without a
// native id receive a synthetic one. It fails only when a track references an
// album or artist that cannot be resolved anywhere in the snapshot; missing
// optional fields degrade to null.
func Normalize(doc *snapshot.Document) (*Tables, error) {
	if doc == nil {
		return nil, services.Wrap(services.ErrNormalization, normalizerStage, "normalize", "nil document", nil)
	}

	builder := newTableBuilder()
	tables := &Tables{
		Snapshot: SnapshotRow{
			SnapshotID: doc.SnapshotID,
			PlaylistID: doc.PlaylistID,
			FetchedAt:  doc.FetchedAt,
			TrackCount: len(doc.Tracks),
		},
		Tracks: make([]TrackRow, 0, len(doc.Tracks)),
	}

	for i, node := range doc.Tracks {
		row, err := builder.track(node, i)
		if err != nil {
			return nil, err
		}
		tables.Tracks = append(tables.Tracks, row)
	}

	tables.Artists = builder.artists
	tables.Albums = builder.albums

	if err := CheckClosure(tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// CheckClosure verifies referential closure: every album and artist id
// referenced by a track row exists in the corresponding table.
func CheckClosure(tables *Tables) error {
	artistIDs := make(map[string]struct{}, len(tables.Artists))
	for _, artist := range tables.Artists {
		artistIDs[artist.ArtistID] = struct{}{}
	}
	albumIDs := make(map[string]struct{}, len(tables.Albums))
	for _, album := range tables.Albums {
		albumIDs[album.AlbumID] = struct{}{}
	}

	for _, track := range tables.Tracks {
		if track.AlbumID != "" {
			if _, ok := albumIDs[track.AlbumID]; !ok {
				return services.Wrap(
					services.ErrNormalization,
					normalizerStage,
					"check closure",
					fmt.Sprintf("track %s references unknown album %s", track.TrackID, track.AlbumID),
					nil,
				)
			}
		}
		for _, artistID := range track.ArtistIDs {
			if _, ok := artistIDs[artistID]; !ok {
				return services.Wrap(
					services.ErrNormalization,
					normalizerStage,
					"check closure",
					fmt.Sprintf("track %s references unknown artist %s", track.TrackID, artistID),
					nil,
				)
			}
		}
	}
	return nil
}

type tableBuilder struct {
	artists     []ArtistRow
	albums      []AlbumRow
	artistIndex map[string]int
	albumIndex  map[string]int
}

func newTableBuilder() *tableBuilder {
	return &tableBuilder{
		artistIndex: make(map[string]int),
		albumIndex:  make(map[string]int),
	}
}

func (b *tableBuilder) track(node snapshot.TrackNode, position int) (TrackRow, error) {
	row := TrackRow{
		TrackID:          node.ID,
		Name:             strings.TrimSpace(node.Name),
		AddedAt:          node.AddedAt,
		EnrichmentStatus: EnrichmentPending,
	}

	if node.DurationMS != nil {
		ms := *node.DurationMS
		if ms < 0 {
			ms = 0
		}
		row.DurationMS = &ms
		minutes := DurationMin(ms)
		row.DurationMin = &minutes
	}
	if node.Popularity != nil {
		pop := *node.Popularity
		if pop < 0 {
			pop = 0
		}
		if pop > 100 {
			pop = 100
		}
		row.Popularity = &pop
	}

	for _, artist := range node.Artists {
		artistID, err := b.artist(artist, node.ID, position)
		if err != nil {
			return TrackRow{}, err
		}
		row.ArtistIDs = append(row.ArtistIDs, artistID)
	}

	if node.Album != nil {
		albumID, err := b.album(*node.Album, node.ID, position)
		if err != nil {
			return TrackRow{}, err
		}
		row.AlbumID = albumID
	}

	return row, nil
}

func (b *tableBuilder) artist(node snapshot.ArtistNode, parentID string, position int) (string, error) {
	id := node.ID
	if id == "" {
		if strings.TrimSpace(node.Name) == "" {
			return "", services.Wrap(
				services.ErrNormalization,
				normalizerStage,
				"resolve artist",
				fmt.Sprintf("track entry %d references an artist with no id and no name", position),
				nil,
			)
		}
		id = SyntheticID("artist", node.Name, parentID)
	}

	if idx, ok := b.artistIndex[id]; ok {
		fillArtist(&b.artists[idx], node)
		return id, nil
	}
	b.artistIndex[id] = len(b.artists)
	b.artists = append(b.artists, ArtistRow{
		ArtistID: id,
		Name:     strings.TrimSpace(node.Name),
		Genres:   append([]string(nil), node.Genres...),
	})
	return id, nil
}

func (b *tableBuilder) album(node snapshot.AlbumNode, parentID string, position int) (string, error) {
	id := node.ID
	if id == "" {
		if strings.TrimSpace(node.Name) == "" {
			return "", services.Wrap(
				services.ErrNormalization,
				normalizerStage,
				"resolve album",
				fmt.Sprintf("track entry %d references an album with no id and no name", position),
				nil,
			)
		}
		id = SyntheticID("album", node.Name, parentID)
	}

	var artistIDs []string
	for _, artist := range node.Artists {
		artistID, err := b.artist(artist, id, position)
		if err != nil {
			return "", err
		}
		artistIDs = append(artistIDs, artistID)
	}

	if idx, ok := b.albumIndex[id]; ok {
		fillAlbum(&b.albums[idx], node, artistIDs)
		return id, nil
	}
	b.albumIndex[id] = len(b.albums)
	b.albums = append(b.albums, AlbumRow{
		AlbumID:     id,
		Name:        strings.TrimSpace(node.Name),
		ReleaseDate: strings.TrimSpace(node.ReleaseDate),
		ArtistIDs:   artistIDs,
	})
	return id, nil
}

// fillArtist backfills fields a later appearance supplies that the first
// appearance lacked. First appearance otherwise wins.
func fillArtist(row *ArtistRow, node snapshot.ArtistNode) {
	if row.Name == "" {
		row.Name = strings.TrimSpace(node.Name)
	}
	if len(row.Genres) == 0 && len(node.Genres) > 0 {
		row.Genres = append([]string(nil), node.Genres...)
	}
}

func fillAlbum(row *AlbumRow, node snapshot.AlbumNode, artistIDs []string) {
	if row.Name == "" {
		row.Name = strings.TrimSpace(node.Name)
	}
	if row.ReleaseDate == "" {
		row.ReleaseDate = strings.TrimSpace(node.ReleaseDate)
	}
	if len(row.ArtistIDs) == 0 && len(artistIDs) > 0 {
		row.ArtistIDs = artistIDs
	}
}

// DurationMin converts a millisecond duration to minutes rounded to two
// decimal places.
func DurationMin(ms int64) float64 {
	return math.Round(float64(ms)/60000*100) / 100
}
