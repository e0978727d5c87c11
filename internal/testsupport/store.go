package testsupport

import (
	"testing"

	"trackforge/internal/config"
	"trackforge/internal/job"
)

// MustOpenStore opens a job.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *job.Store {
	t.Helper()

	store, err := job.Open(cfg)
	if err != nil {
		t.Fatalf("job.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
