package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trackforge/internal/config"
	"trackforge/internal/enrich"
	"trackforge/internal/logging"
	"trackforge/internal/normalize"
	"trackforge/internal/retry"
	"trackforge/internal/services"
	"trackforge/internal/snapshot"
	"trackforge/internal/warehouse"
)

// Runner drives one snapshot through the transform pipeline: read,
// normalize, enrich, write. Each stage transition is persisted so status
// output always reflects where a run is or where it stopped.
type Runner struct {
	store    *Store
	enricher *enrich.Enricher
	writer   *warehouse.Writer
	logger   *slog.Logger
}

// Report summarizes a finished run for callers that do not want to re-read
// the store.
type Report struct {
	SnapshotID     string
	PlaylistID     string
	Status         Status
	PartitionKey   string
	TrackCount     int
	FailedTrackIDs []string
	Replayed       bool
}

// NewRunner wires the pipeline stages from configuration.
func NewRunner(cfg *config.Config, store *Store, source enrich.Source, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	enricher := enrich.New(source, enrich.Config{
		BatchSize:   cfg.Enrichment.BatchSize,
		Workers:     cfg.Enrichment.Workers,
		RatePerSec:  cfg.Enrichment.RequestsPerSecond,
		Burst:       cfg.Enrichment.Burst,
		CallTimeout: time.Duration(cfg.Enrichment.CallTimeoutSeconds) * time.Second,
		Retry: retry.FromSettings(
			cfg.Enrichment.Retry.MaxAttempts,
			cfg.Enrichment.Retry.BaseDelayMS,
			cfg.Enrichment.Retry.MaxDelayMS,
			cfg.Enrichment.Retry.Jitter,
		),
	}, logger)

	writerRetry := retry.FromSettings(
		cfg.Writer.Retry.MaxAttempts,
		cfg.Writer.Retry.BaseDelayMS,
		cfg.Writer.Retry.MaxDelayMS,
		cfg.Writer.Retry.Jitter,
	)
	if cfg.Writer.CommitRetries > 0 {
		writerRetry.MaxAttempts = cfg.Writer.CommitRetries
	}
	writer := warehouse.NewWriter(warehouse.Config{
		WarehouseDir: cfg.Paths.WarehouseDir,
		StagingDir:   cfg.Paths.StagingDir,
		LeaseTimeout: time.Duration(cfg.Writer.LeaseTimeoutSeconds) * time.Second,
		Retry:        writerRetry,
	}, logger)

	return &Runner{
		store:    store,
		enricher: enricher,
		writer:   writer,
		logger:   logging.NewComponentLogger(logger, "job"),
	}
}

// Run processes one trigger end to end and returns the terminal report. The
// returned error is non-nil only for failed runs; degraded runs are a
// success with partial enrichment.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (*Report, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithSnapshotID(ctx, trigger.SnapshotID)

	run, err := r.store.StartRun(ctx, trigger)
	if err != nil {
		return nil, services.Wrap(nil, "job", "start run", "", err)
	}

	doc, err := r.readStage(ctx, run)
	if err != nil {
		return r.fail(ctx, run, err)
	}

	tables, err := r.normalizeStage(ctx, run, doc)
	if err != nil {
		return r.fail(ctx, run, err)
	}

	// Enrichment can degrade the run but never fails it. A cancelled
	// context is the one exception: the run stops before the commit, so
	// the failure is recorded against the write stage it never entered.
	enrichReport := r.enrichStage(ctx, run, tables)
	if ctx.Err() != nil {
		run.Stage = string(StatusWriting)
		return r.fail(ctx, run, services.Wrap(services.ErrTransient, "writing", "aborted", "run cancelled before commit", ctx.Err()))
	}

	commit, err := r.writeStage(ctx, run, tables)
	if err != nil {
		return r.fail(ctx, run, err)
	}

	status := StatusCommitted
	if run.Degraded {
		status = StatusDegraded
	}
	now := time.Now().UTC()
	run.Status = status
	run.Stage = ""
	run.PartitionKey = commit.Key.String()
	run.FinishedAt = &now
	if err := r.store.Update(ctx, run); err != nil {
		return nil, services.Wrap(nil, "job", "persist result", "", err)
	}

	logging.WithContext(ctx, r.logger).Info("transform run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("status", string(status)),
		logging.String(logging.FieldPartition, run.PartitionKey),
		logging.Int("track_count", run.TrackCount),
		logging.Int("failed_tracks", len(run.FailedTrackIDs)),
		logging.Bool("replayed", commit.Replayed),
	)
	return &Report{
		SnapshotID:     run.SnapshotID,
		PlaylistID:     run.PlaylistID,
		Status:         status,
		PartitionKey:   run.PartitionKey,
		TrackCount:     run.TrackCount,
		FailedTrackIDs: enrichReport.FailedTrackIDs,
		Replayed:       commit.Replayed,
	}, nil
}

func (r *Runner) readStage(ctx context.Context, run *Run) (*snapshot.Document, error) {
	ctx, logger, started := r.beginStage(ctx, run, StatusReading)
	if err := r.store.Update(ctx, run); err != nil {
		return nil, services.Wrap(nil, "reading", "persist transition", "", err)
	}

	doc, err := snapshot.Load(run.Location, run.SnapshotID)
	if err != nil {
		return nil, err
	}
	run.PlaylistID = doc.PlaylistID
	run.TrackCount = len(doc.Tracks)
	r.endStage(logger, started, logging.Int("tracks", len(doc.Tracks)))
	return doc, nil
}

func (r *Runner) normalizeStage(ctx context.Context, run *Run, doc *snapshot.Document) (*normalize.Tables, error) {
	ctx, logger, started := r.beginStage(ctx, run, StatusNormalizing)
	if err := r.store.Update(ctx, run); err != nil {
		return nil, services.Wrap(nil, "normalizing", "persist transition", "", err)
	}

	tables, err := normalize.Normalize(doc)
	if err != nil {
		return nil, err
	}
	if err := normalize.CheckClosure(tables); err != nil {
		return nil, err
	}
	r.endStage(logger, started,
		logging.Int("tracks", len(tables.Tracks)),
		logging.Int("artists", len(tables.Artists)),
		logging.Int("albums", len(tables.Albums)),
	)
	return tables, nil
}

func (r *Runner) enrichStage(ctx context.Context, run *Run, tables *normalize.Tables) enrich.Report {
	ctx, logger, started := r.beginStage(ctx, run, StatusEnriching)
	if err := r.store.Update(ctx, run); err != nil {
		logger.Warn("failed to persist enriching transition", logging.Error(err))
	}

	report, err := r.enricher.Enrich(ctx, tables)
	run.FailedTrackIDs = report.FailedTrackIDs
	run.Degraded = report.Unavailable || len(report.FailedTrackIDs) > 0
	if err != nil && !errors.Is(err, services.ErrEnrichmentUnavailable) && ctx.Err() == nil {
		logger.Warn("enrichment error, continuing degraded", logging.Error(err))
	}
	r.endStage(logger, started,
		logging.Int("requested", report.Requested),
		logging.Int("enriched", report.Enriched),
		logging.Int("failed", len(report.FailedTrackIDs)),
		logging.Bool("unavailable", report.Unavailable),
	)
	return report
}

func (r *Runner) writeStage(ctx context.Context, run *Run, tables *normalize.Tables) (*warehouse.CommitResult, error) {
	ctx, logger, started := r.beginStage(ctx, run, StatusWriting)
	if err := r.store.Update(ctx, run); err != nil {
		return nil, services.Wrap(nil, "writing", "persist transition", "", err)
	}

	result, err := r.writer.Commit(ctx, tables)
	if err != nil {
		return nil, err
	}
	r.endStage(logger, started,
		logging.String(logging.FieldPartition, result.Key.String()),
		logging.Bool("replayed", result.Replayed),
	)
	return result, nil
}

func (r *Runner) beginStage(ctx context.Context, run *Run, status Status) (context.Context, *slog.Logger, time.Time) {
	run.Status = status
	run.Stage = string(status)
	ctx = services.WithStage(ctx, string(status))
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	return ctx, logger, time.Now()
}

func (r *Runner) endStage(logger *slog.Logger, started time.Time, attrs ...logging.Attr) {
	attrs = append(attrs,
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", time.Since(started)),
	)
	logger.Info("stage completed", logging.Args(attrs...)...)
}

// fail records the terminal failure on the run and surfaces the error.
func (r *Runner) fail(ctx context.Context, run *Run, stageErr error) (*Report, error) {
	now := time.Now().UTC()
	run.Status = StatusFailed
	run.ErrorKind = services.Kind(stageErr)
	run.ErrorMessage = stageErr.Error()
	run.FinishedAt = &now
	// The terminal state must land even when the run's own context was
	// cancelled.
	if err := r.store.Update(context.WithoutCancel(ctx), run); err != nil {
		logging.WithContext(ctx, r.logger).Error("failed to persist run failure", logging.Error(err))
	}

	logging.WithContext(ctx, r.logger).Error("transform run failed",
		logging.String(logging.FieldEventType, "run_failure"),
		logging.String("error_kind", run.ErrorKind),
		logging.Error(stageErr),
	)
	return &Report{
		SnapshotID: run.SnapshotID,
		PlaylistID: run.PlaylistID,
		Status:     StatusFailed,
	}, stageErr
}
