package warehouse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Manifest records which snapshots are committed into one partition. Its
// atomic replacement is the commit's visibility point: data files not listed
// here are not part of the partition.
type Manifest struct {
	Partition string          `json:"partition"`
	Snapshots []ManifestEntry `json:"snapshots"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ManifestEntry describes one committed snapshot.
type ManifestEntry struct {
	SnapshotID  string    `json:"snapshot_id"`
	FetchedAt   time.Time `json:"fetched_at"`
	CommittedAt time.Time `json:"committed_at"`
}

// Has reports whether a snapshot id is already committed.
func (m *Manifest) Has(snapshotID string) bool {
	for _, entry := range m.Snapshots {
		if entry.SnapshotID == snapshotID {
			return true
		}
	}
	return false
}

// SnapshotIDs returns the committed snapshot ids in commit order.
func (m *Manifest) SnapshotIDs() []string {
	ids := make([]string, 0, len(m.Snapshots))
	for _, entry := range m.Snapshots {
		ids = append(ids, entry.SnapshotID)
	}
	return ids
}

// loadManifest reads a partition manifest; a missing file yields an empty
// manifest for that partition.
func loadManifest(path, partitionName string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Manifest{Partition: partitionName}, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &manifest, nil
}

// saveManifest writes the manifest via a temp file and rename so readers
// never observe a torn update.
func saveManifest(path string, manifest *Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	manifest.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}
