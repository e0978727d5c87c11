package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classify pipeline failures. Stages wrap their errors with
// one of these markers via Wrap so the job runner can map any failure to a
// terminal status and a reportable kind.
var (
	// ErrMalformedSnapshot marks a raw snapshot document that fails shape
	// validation. Fatal; the job never retries structural errors.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrNormalization marks broken referential closure in a snapshot.
	// Fatal; the data cannot be flattened consistently.
	ErrNormalization = errors.New("normalization error")
	// ErrEnrichmentUnavailable marks a systemic enrichment outage. The job
	// degrades instead of failing.
	ErrEnrichmentUnavailable = errors.New("enrichment unavailable")
	// ErrWriteConflict marks a lost race for a partition lease. Retryable by
	// the caller, never internally.
	ErrWriteConflict = errors.New("write conflict")
	// ErrCommitFailure marks an exhausted partition commit. Fatal; staged
	// output has been discarded.
	ErrCommitFailure = errors.New("commit failure")
	// ErrTransient marks failures worth retrying with backoff: timeouts,
	// rate-limit responses, transient I/O.
	ErrTransient = errors.New("transient failure")
	// ErrConfiguration marks unusable configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrInternal marks faults in the pipeline's own machinery, such as a
	// failed run-store write. The default marker when Wrap gets none.
	ErrInternal = errors.New("internal error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later status classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether the error should be retried with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Kind maps an error to the stable name reported in job status output.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedSnapshot):
		return "malformed_snapshot"
	case errors.Is(err, ErrNormalization):
		return "normalization_error"
	case errors.Is(err, ErrEnrichmentUnavailable):
		return "enrichment_unavailable"
	case errors.Is(err, ErrWriteConflict):
		return "write_conflict"
	case errors.Is(err, ErrCommitFailure):
		return "commit_failure"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrTransient):
		return "transient_failure"
	case errors.Is(err, ErrInternal):
		return "internal_error"
	default:
		return "internal_error"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
