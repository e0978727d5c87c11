package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"trackforge/internal/logging"
	"trackforge/internal/normalize"
	"trackforge/internal/retry"
	"trackforge/internal/services"
)

const enricherStage = "enriching"

// Source fetches audio features for a batch of track ids. The returned slice
// may be shorter than the request or contain gaps; tracks absent from the
// response are treated as failed for this snapshot. Implementations tag
// systemic outages with services.ErrEnrichmentUnavailable and retryable
// faults with services.ErrTransient.
type Source interface {
	AudioFeatures(ctx context.Context, trackIDs []string) ([]*normalize.AudioFeatures, error)
}

// Config tunes the enrichment stage.
type Config struct {
	BatchSize   int
	Workers     int
	RatePerSec  float64
	Burst       int
	CallTimeout time.Duration
	Retry       retry.Config
}

// Report summarizes one enrichment run.
type Report struct {
	Requested      int
	Enriched       int
	FailedTrackIDs []string
	Unavailable    bool
}

// Enricher coordinates batched, rate-limited feature fetches.
type Enricher struct {
	source  Source
	limiter *rate.Limiter
	cfg     Config
	logger  *slog.Logger
}

// New constructs an Enricher. The token bucket is created once here and
// shared by every worker.
func New(source Source, cfg Config, logger *slog.Logger) *Enricher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Enricher{
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "enricher"),
	}
}

type batchResult struct {
	ids      []string
	features []*normalize.AudioFeatures
	err      error
}

// Enrich fetches features for every pending track row and folds the results
// into the table. The returned error is non-nil only for a systemic outage,
// in which case every unfetched row has been marked failed and the report is
// flagged unavailable.
func (e *Enricher) Enrich(ctx context.Context, tables *normalize.Tables) (Report, error) {
	pending := tables.PendingTrackIDs()
	report := Report{Requested: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	batches := splitBatches(pending, e.cfg.BatchSize)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan []string)
	results := make(chan batchResult, len(batches))

	group, workerCtx := errgroup.WithContext(runCtx)
	for i := 0; i < e.cfg.Workers; i++ {
		group.Go(func() error {
			for ids := range jobs {
				results <- e.fetchBatch(workerCtx, ids)
			}
			return nil
		})
	}

	// Workers drain the jobs channel until it closes, even once the run
	// context is cancelled, so every batch yields exactly one result.
	go func() {
		defer close(jobs)
		for _, batch := range batches {
			jobs <- batch
		}
	}()

	// Single-writer discipline: only this loop mutates the track table.
	features := make(map[string]*normalize.AudioFeatures)
	failed := make(map[string]struct{})
	unavailable := false
	collected := 0
	for collected < len(batches) {
		res := <-results
		collected++

		if res.err != nil {
			if errors.Is(res.err, services.ErrEnrichmentUnavailable) && !unavailable {
				unavailable = true
				cancel()
				e.logger.Error("enrichment service unavailable, degrading remaining tracks", logging.Error(res.err))
			}
			for _, id := range res.ids {
				failed[id] = struct{}{}
			}
			continue
		}
		for _, f := range res.features {
			if f != nil && f.TrackID != "" {
				features[f.TrackID] = f
			}
		}
		for _, id := range res.ids {
			if _, ok := features[id]; !ok {
				failed[id] = struct{}{}
			}
		}
	}
	_ = group.Wait()

	for i := range tables.Tracks {
		track := &tables.Tracks[i]
		if track.EnrichmentStatus != normalize.EnrichmentPending {
			continue
		}
		if f, ok := features[track.TrackID]; ok {
			track.Features = f
			track.EnrichmentStatus = normalize.EnrichmentOK
			report.Enriched++
			continue
		}
		track.EnrichmentStatus = normalize.EnrichmentFailed
		report.FailedTrackIDs = append(report.FailedTrackIDs, track.TrackID)
	}
	sort.Strings(report.FailedTrackIDs)
	report.Unavailable = unavailable

	e.logger.Info("enrichment finished",
		logging.Int("requested", report.Requested),
		logging.Int("enriched", report.Enriched),
		logging.Int("failed", len(report.FailedTrackIDs)),
		logging.Bool("unavailable", report.Unavailable),
	)

	if unavailable {
		return report, services.Wrap(services.ErrEnrichmentUnavailable, enricherStage, "fetch features", "systemic failure, remaining tracks degraded", nil)
	}
	return report, nil
}

// fetchBatch issues one rate-limited, retried call for a batch of track ids.
func (e *Enricher) fetchBatch(ctx context.Context, ids []string) batchResult {
	var features []*normalize.AudioFeatures
	err := retry.Do(ctx, e.logger, e.cfg.Retry, services.IsTransient, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx := ctx
		if e.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
			defer cancel()
		}
		fetched, err := e.source.AudioFeatures(callCtx, ids)
		if err != nil {
			if callCtx.Err() != nil && ctx.Err() == nil {
				// Per-call timeout, not caller cancellation.
				return services.Wrap(services.ErrTransient, enricherStage, "fetch batch", "call timed out", err)
			}
			return err
		}
		features = fetched
		return nil
	})
	return batchResult{ids: ids, features: features, err: err}
}

func splitBatches(ids []string, size int) [][]string {
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
