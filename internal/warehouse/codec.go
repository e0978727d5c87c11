package warehouse

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"trackforge/internal/normalize"
	"trackforge/internal/partition"
)

// Record is one table row in its wire form. Every table shares the same
// tail: the first field is the primary key and the last two fields are the
// source snapshot id and fetch time, so merge and decode stay table-agnostic.
type Record struct {
	Key        string
	SnapshotID string
	FetchedAt  time.Time
	Fields     []string
}

const listSeparator = "|"

var tableHeaders = map[string][]string{
	partition.TableTracks: {
		"track_id", "name", "duration_ms", "duration_min", "popularity",
		"album_id", "artist_ids", "added_at", "enrichment_status",
		"danceability", "energy", "loudness", "speechiness", "acousticness",
		"instrumentalness", "liveness", "valence", "tempo",
		"source_snapshot_id", "source_fetched_at",
	},
	partition.TableArtists: {
		"artist_id", "name", "genres",
		"source_snapshot_id", "source_fetched_at",
	},
	partition.TableAlbums: {
		"album_id", "name", "release_date", "artist_ids",
		"source_snapshot_id", "source_fetched_at",
	},
	partition.TableSnapshots: {
		"snapshot_id", "playlist_id", "fetched_at", "track_count",
		"source_snapshot_id", "source_fetched_at",
	},
}

// Header returns the column names of a table. Schema changes must stay
// additive: downstream catalogs infer schema from these files.
func Header(table string) []string {
	header, ok := tableHeaders[table]
	if !ok {
		return nil
	}
	return append([]string(nil), header...)
}

// encodeTables converts the normalized tables into per-table record sets
// stamped with the snapshot's provenance columns.
func encodeTables(tables *normalize.Tables) map[string][]Record {
	snapshotID := tables.Snapshot.SnapshotID
	fetchedAt := tables.Snapshot.FetchedAt
	provenance := []string{snapshotID, fetchedAt.UTC().Format(time.RFC3339Nano)}

	out := make(map[string][]Record, 4)

	tracks := make([]Record, 0, len(tables.Tracks))
	for _, row := range tables.Tracks {
		fields := []string{
			row.TrackID,
			row.Name,
			nullableInt64(row.DurationMS),
			nullableFloat(row.DurationMin),
			nullableInt(row.Popularity),
			row.AlbumID,
			strings.Join(row.ArtistIDs, listSeparator),
			row.AddedAt,
			string(row.EnrichmentStatus),
		}
		fields = append(fields, featureFields(row.Features)...)
		fields = append(fields, provenance...)
		tracks = append(tracks, Record{Key: row.TrackID, SnapshotID: snapshotID, FetchedAt: fetchedAt, Fields: fields})
	}
	out[partition.TableTracks] = tracks

	artists := make([]Record, 0, len(tables.Artists))
	for _, row := range tables.Artists {
		fields := []string{row.ArtistID, row.Name, strings.Join(row.Genres, listSeparator)}
		fields = append(fields, provenance...)
		artists = append(artists, Record{Key: row.ArtistID, SnapshotID: snapshotID, FetchedAt: fetchedAt, Fields: fields})
	}
	out[partition.TableArtists] = artists

	albums := make([]Record, 0, len(tables.Albums))
	for _, row := range tables.Albums {
		fields := []string{row.AlbumID, row.Name, row.ReleaseDate, strings.Join(row.ArtistIDs, listSeparator)}
		fields = append(fields, provenance...)
		albums = append(albums, Record{Key: row.AlbumID, SnapshotID: snapshotID, FetchedAt: fetchedAt, Fields: fields})
	}
	out[partition.TableAlbums] = albums

	meta := tables.Snapshot
	metaFields := []string{
		meta.SnapshotID,
		meta.PlaylistID,
		meta.FetchedAt.UTC().Format(time.RFC3339Nano),
		strconv.Itoa(meta.TrackCount),
	}
	metaFields = append(metaFields, provenance...)
	out[partition.TableSnapshots] = []Record{{
		Key:        meta.SnapshotID,
		SnapshotID: snapshotID,
		FetchedAt:  fetchedAt,
		Fields:     metaFields,
	}}

	return out
}

func featureFields(f *normalize.AudioFeatures) []string {
	if f == nil {
		return make([]string, 9)
	}
	return []string{
		nullableFloat(f.Danceability),
		nullableFloat(f.Energy),
		nullableFloat(f.Loudness),
		nullableFloat(f.Speechiness),
		nullableFloat(f.Acousticness),
		nullableFloat(f.Instrumentalness),
		nullableFloat(f.Liveness),
		nullableFloat(f.Valence),
		nullableFloat(f.Tempo),
	}
}

func nullableInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func nullableInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func nullableFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// writeRecords writes one snapshot's rows for one table as CSV with header.
func writeRecords(path string, header []string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create table directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(record.Fields); err != nil {
			return fmt.Errorf("write row %q: %w", record.Key, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	return file.Close()
}

// readRecords loads one table file back into records using the shared
// first-column-key, trailing-provenance layout.
func readRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]Record, 0, len(rows)-1)
	for _, fields := range rows[1:] {
		if len(fields) < 3 {
			return nil, fmt.Errorf("parse %s: row has %d fields", path, len(fields))
		}
		fetchedAt, err := time.Parse(time.RFC3339Nano, fields[len(fields)-1])
		if err != nil {
			return nil, fmt.Errorf("parse %s: bad source_fetched_at: %w", path, err)
		}
		records = append(records, Record{
			Key:        fields[0],
			SnapshotID: fields[len(fields)-2],
			FetchedAt:  fetchedAt,
			Fields:     fields,
		})
	}
	return records, nil
}
