// Package partition defines the partition key and the on-disk path scheme of
// the committed warehouse: one partition per playlist and calendar day, one
// file per table per snapshot.
package partition

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Table names of the committed entity tables.
const (
	TableTracks    = "tracks"
	TableArtists   = "artists"
	TableAlbums    = "albums"
	TableSnapshots = "snapshots"
)

// Tables lists the entity tables in commit order.
func Tables() []string {
	return []string{TableTracks, TableArtists, TableAlbums, TableSnapshots}
}

// Key identifies one committed partition: a playlist on a calendar day.
type Key struct {
	PlaylistID string
	Year       int
	Month      int
	Day        int
}

// KeyFor derives the partition key from a playlist id and its fetch time.
// The calendar day is taken in UTC.
func KeyFor(playlistID string, fetchedAt time.Time) Key {
	utc := fetchedAt.UTC()
	return Key{
		PlaylistID: playlistID,
		Year:       utc.Year(),
		Month:      int(utc.Month()),
		Day:        utc.Day(),
	}
}

// String renders the key in the stable form used in status reports and logs.
func (k Key) String() string {
	return fmt.Sprintf("%s/%04d-%02d-%02d", k.PlaylistID, k.Year, k.Month, k.Day)
}

// DatePath returns the Hive-style date segment of the partition path.
func (k Key) DatePath() string {
	return filepath.Join(
		fmt.Sprintf("year=%04d", k.Year),
		fmt.Sprintf("month=%02d", k.Month),
		fmt.Sprintf("day=%02d", k.Day),
	)
}

// TableDir returns the directory holding one table of this partition,
// relative to the warehouse root. The warehouse is laid out per playlist:
// <playlist_id>/<table>/year=YYYY/month=MM/day=DD/.
func (k Key) TableDir(table string) string {
	return filepath.Join(sanitize(k.PlaylistID), table, k.DatePath())
}

// TableFile returns the path of one snapshot's file within a table
// directory, relative to the warehouse root.
func (k Key) TableFile(table, snapshotID string) string {
	return filepath.Join(k.TableDir(table), sanitize(snapshotID)+".csv")
}

// LeaseName returns the flock file name serializing writers of this
// partition.
func (k Key) LeaseName() string {
	return fmt.Sprintf("%s-%04d-%02d-%02d.lock", sanitize(k.PlaylistID), k.Year, k.Month, k.Day)
}

// ManifestPath returns the path of the partition's commit manifest, relative
// to the warehouse root.
func (k Key) ManifestPath() string {
	return filepath.Join(sanitize(k.PlaylistID), ".manifests", fmt.Sprintf("%04d-%02d-%02d.json", k.Year, k.Month, k.Day))
}

// sanitize keeps ids filesystem-safe without losing uniqueness for the id
// shapes Spotify produces.
func sanitize(value string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_", "..", "_")
	cleaned := replacer.Replace(strings.TrimSpace(value))
	if cleaned == "" {
		return "_"
	}
	return cleaned
}
