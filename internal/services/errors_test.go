package services_test

import (
	"errors"
	"fmt"
	"testing"

	"trackforge/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrWriteConflict, "writing", "acquire lease", "timed out", base)
	if !errors.Is(err, services.ErrWriteConflict) {
		t.Fatalf("expected write conflict marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestWrapWithoutMarkerDefaultsInternal(t *testing.T) {
	err := services.Wrap(nil, "job", "persist transition", "", errors.New("database is locked"))
	if !errors.Is(err, services.ErrInternal) {
		t.Fatalf("expected internal default, got %v", err)
	}
	if got := services.Kind(err); got != "internal_error" {
		t.Fatalf("Kind = %q, want internal_error", got)
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.ErrMalformedSnapshot, "malformed_snapshot"},
		{services.ErrNormalization, "normalization_error"},
		{services.ErrEnrichmentUnavailable, "enrichment_unavailable"},
		{services.ErrWriteConflict, "write_conflict"},
		{services.ErrCommitFailure, "commit_failure"},
		{fmt.Errorf("wrapped: %w", services.ErrCommitFailure), "commit_failure"},
		{services.ErrInternal, "internal_error"},
		{errors.New("mystery"), "internal_error"},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
