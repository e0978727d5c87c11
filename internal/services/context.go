package services

import "context"

type contextKey string

const (
	snapshotIDKey contextKey = "snapshot_id"
	stageKey      contextKey = "stage"
	requestIDKey  contextKey = "request_id"
)

// WithSnapshotID annotates context with the snapshot being processed.
func WithSnapshotID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, snapshotIDKey, id)
}

// SnapshotIDFromContext extracts the snapshot identifier if present.
func SnapshotIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(snapshotIDKey).(string)
	return v, ok && v != ""
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext extracts the pipeline stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(stageKey).(string)
	return v, ok && v != ""
}

// WithRequestID annotates context with a correlation identifier for one run.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok && v != ""
}
