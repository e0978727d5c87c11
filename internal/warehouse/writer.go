package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackforge/internal/fileutil"
	"trackforge/internal/logging"
	"trackforge/internal/normalize"
	"trackforge/internal/partition"
	"trackforge/internal/retry"
	"trackforge/internal/services"
)

const writerStage = "writing"

// Config tunes partition commit behaviour.
type Config struct {
	WarehouseDir string
	StagingDir   string
	LeaseTimeout time.Duration
	Retry        retry.Config
}

// CommitResult reports the outcome of one partition commit.
type CommitResult struct {
	Key        partition.Key
	SnapshotID string
	Replayed   bool
	RowCounts  map[string]int
	MergedWith []string
}

// Writer commits normalized tables to the partitioned warehouse.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	// afterPlace fires after each candidate table file is published.
	// Used by tests to simulate mid-commit failures.
	afterPlace func(table string) error
}

// NewWriter constructs a partition writer.
func NewWriter(cfg Config, logger *slog.Logger) *Writer {
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 30 * time.Second
	}
	return &Writer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "writer"),
	}
}

// Commit merges the snapshot's tables into its partition and publishes them
// atomically. Re-committing an already-committed snapshot id is a no-op
// success. A lost lease race reports a write conflict; an exhausted publish
// reports a commit failure with all staged output discarded.
func (w *Writer) Commit(ctx context.Context, tables *normalize.Tables) (*CommitResult, error) {
	snapshotID := tables.Snapshot.SnapshotID
	if snapshotID == "" {
		return nil, services.Wrap(services.ErrCommitFailure, writerStage, "validate", "snapshot id is required", nil)
	}
	key := partition.KeyFor(tables.Snapshot.PlaylistID, tables.Snapshot.FetchedAt)
	logger := w.logger.With(
		logging.String(logging.FieldPartition, key.String()),
		logging.String(logging.FieldSnapshotID, snapshotID),
	)

	held, err := acquireLease(ctx, w.cfg.WarehouseDir, key, w.cfg.LeaseTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := held.release(); releaseErr != nil {
			logger.Warn("failed to release partition lease", logging.Error(releaseErr))
		}
	}()

	manifestPath := filepath.Join(w.cfg.WarehouseDir, key.ManifestPath())
	manifest, err := loadManifest(manifestPath, key.String())
	if err != nil {
		return nil, services.Wrap(services.ErrCommitFailure, writerStage, "load manifest", "", err)
	}
	if manifest.Has(snapshotID) {
		logger.Info("snapshot already committed, replay is a no-op")
		return &CommitResult{Key: key, SnapshotID: snapshotID, Replayed: true, MergedWith: manifest.SnapshotIDs()}, nil
	}

	candidate := encodeTables(tables)
	result := &CommitResult{
		Key:        key,
		SnapshotID: snapshotID,
		RowCounts:  make(map[string]int, len(candidate)),
		MergedWith: manifest.SnapshotIDs(),
	}
	for table, records := range candidate {
		result.RowCounts[table] = len(records)
	}

	plan, err := w.stage(key, manifest, candidate, snapshotID)
	if err != nil {
		w.discardStaging(plan, logger)
		return nil, services.Wrap(services.ErrCommitFailure, writerStage, "stage tables", "", err)
	}

	publishErr := retry.Do(ctx, logger, w.cfg.Retry, transientIO, func(context.Context) error {
		return w.publish(plan, manifest, manifestPath, tables.Snapshot, snapshotID)
	})
	if publishErr != nil {
		w.rollback(plan, logger)
		w.discardStaging(plan, logger)
		if errors.Is(publishErr, services.ErrWriteConflict) || errors.Is(publishErr, context.Canceled) {
			return nil, publishErr
		}
		return nil, services.Wrap(services.ErrCommitFailure, writerStage, "publish partition", "staged output discarded", publishErr)
	}

	w.discardStaging(plan, logger)
	logger.Info("partition commit complete",
		logging.Int("tracks", result.RowCounts[partition.TableTracks]),
		logging.Int("artists", result.RowCounts[partition.TableArtists]),
		logging.Int("albums", result.RowCounts[partition.TableAlbums]),
		logging.Int("merged_snapshots", len(result.MergedWith)),
	)
	return result, nil
}

// commitPlan captures everything publish needs so a retried publish is
// reproducible from the staged files alone.
type commitPlan struct {
	stagingRoot string
	// staged maps warehouse-relative paths to staged absolute paths.
	staged map[string]string
	// placed lists warehouse-relative paths of the candidate snapshot's
	// files, the ones rollback must remove.
	placed []string
	// pruned lists warehouse-relative paths of prior-snapshot files that
	// are rewritten with superseded rows removed.
	pruned []string
	// obsolete lists warehouse-relative paths of prior-snapshot files that
	// lost every row and are deleted at publish.
	obsolete []string
	// backups maps every pruned or obsolete path to a staged copy of its
	// pre-commit content so rollback can restore the prior snapshots.
	backups map[string]string
}

// stage reads the current partition state, merges the candidate rows in, and
// writes every resulting file under a fresh staging directory.
func (w *Writer) stage(key partition.Key, manifest *Manifest, candidate map[string][]Record, snapshotID string) (*commitPlan, error) {
	plan := &commitPlan{
		stagingRoot: filepath.Join(w.cfg.StagingDir, "commit-"+uuid.NewString()),
		staged:      make(map[string]string),
		backups:     make(map[string]string),
	}

	for _, table := range partition.Tables() {
		existing, err := w.loadExisting(key, table, manifest)
		if err != nil {
			return plan, err
		}
		merged := mergeRecords(existing, candidate[table])
		grouped := groupBySnapshot(merged)

		header := Header(table)
		for groupID, records := range grouped {
			relPath := key.TableFile(table, groupID)
			stagedPath := filepath.Join(plan.stagingRoot, relPath)
			if err := writeRecords(stagedPath, header, records); err != nil {
				return plan, err
			}
			plan.staged[relPath] = stagedPath
			if groupID == snapshotID {
				plan.placed = append(plan.placed, relPath)
			} else {
				if err := w.backupPrior(plan, relPath); err != nil {
					return plan, err
				}
				plan.pruned = append(plan.pruned, relPath)
			}
		}

		// Prior snapshots that lost every row of this table.
		for _, priorID := range manifest.SnapshotIDs() {
			if _, stillPresent := grouped[priorID]; stillPresent {
				continue
			}
			relPath := key.TableFile(table, priorID)
			if _, err := os.Stat(filepath.Join(w.cfg.WarehouseDir, relPath)); err == nil {
				if err := w.backupPrior(plan, relPath); err != nil {
					return plan, err
				}
				plan.obsolete = append(plan.obsolete, relPath)
			}
		}
	}
	return plan, nil
}

// backupPrior stages a copy of a published prior-snapshot file before
// publish is allowed to rewrite or delete it.
func (w *Writer) backupPrior(plan *commitPlan, relPath string) error {
	if _, done := plan.backups[relPath]; done {
		return nil
	}
	backupPath := filepath.Join(plan.stagingRoot, "prior", relPath)
	if err := os.MkdirAll(filepath.Dir(backupPath), 0o755); err != nil {
		return err
	}
	if err := fileutil.CopyFile(filepath.Join(w.cfg.WarehouseDir, relPath), backupPath); err != nil {
		return err
	}
	plan.backups[relPath] = backupPath
	return nil
}

func (w *Writer) loadExisting(key partition.Key, table string, manifest *Manifest) ([]Record, error) {
	var existing []Record
	for _, entry := range manifest.Snapshots {
		path := filepath.Join(w.cfg.WarehouseDir, key.TableFile(table, entry.SnapshotID))
		records, err := readRecords(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		existing = append(existing, records...)
	}
	return existing, nil
}

// publish makes the staged partition state visible. Order matters: prior
// files are pruned before the candidate's files appear so no reader ever
// observes duplicate primary keys, and the manifest swap last is the point
// at which the commit becomes visible. Every step is idempotent so a
// transient failure can be retried from the top.
func (w *Writer) publish(plan *commitPlan, manifest *Manifest, manifestPath string, meta normalize.SnapshotRow, snapshotID string) error {
	for _, relPath := range plan.pruned {
		if err := fileutil.ReplaceFile(plan.staged[relPath], filepath.Join(w.cfg.WarehouseDir, relPath)); err != nil {
			return fmt.Errorf("prune %s: %w", relPath, err)
		}
	}
	for _, relPath := range plan.obsolete {
		if err := os.Remove(filepath.Join(w.cfg.WarehouseDir, relPath)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove obsolete %s: %w", relPath, err)
		}
	}
	for _, relPath := range plan.placed {
		if err := fileutil.ReplaceFile(plan.staged[relPath], filepath.Join(w.cfg.WarehouseDir, relPath)); err != nil {
			return fmt.Errorf("place %s: %w", relPath, err)
		}
		if w.afterPlace != nil {
			if err := w.afterPlace(tableOf(relPath)); err != nil {
				return err
			}
		}
	}

	updated := *manifest
	updated.Snapshots = append(append([]ManifestEntry(nil), manifest.Snapshots...), ManifestEntry{
		SnapshotID:  snapshotID,
		FetchedAt:   meta.FetchedAt.UTC(),
		CommittedAt: time.Now().UTC(),
	})
	return saveManifest(manifestPath, &updated)
}

// rollback undoes a failed publish: the candidate's placed files are
// removed and every pruned or deleted prior-snapshot file is restored from
// its staged backup, so the partition returns to exactly its pre-commit
// state.
func (w *Writer) rollback(plan *commitPlan, logger *slog.Logger) {
	for _, relPath := range plan.placed {
		path := filepath.Join(w.cfg.WarehouseDir, relPath)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to roll back placed file", logging.String("path", path), logging.Error(err))
		}
	}
	for relPath, backupPath := range plan.backups {
		if err := fileutil.ReplaceFile(backupPath, filepath.Join(w.cfg.WarehouseDir, relPath)); err != nil {
			logger.Warn("failed to restore prior snapshot file",
				logging.String("path", relPath), logging.Error(err))
		}
	}
}

func (w *Writer) discardStaging(plan *commitPlan, logger *slog.Logger) {
	if plan == nil || plan.stagingRoot == "" {
		return
	}
	if err := os.RemoveAll(plan.stagingRoot); err != nil {
		logger.Warn("failed to remove staging directory", logging.String("path", plan.stagingRoot), logging.Error(err))
	}
}

// transientIO treats every publish error as retryable except explicit
// non-retryable markers; structural problems surface before publish.
func transientIO(err error) bool {
	return !errors.Is(err, services.ErrWriteConflict) && !errors.Is(err, context.Canceled)
}

// tableOf extracts the table segment from a warehouse-relative path of the
// form <playlist>/<table>/year=.../<snapshot>.csv.
func tableOf(relPath string) string {
	segments := strings.Split(filepath.ToSlash(relPath), "/")
	if len(segments) >= 2 {
		return segments[1]
	}
	return relPath
}
