package warehouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"trackforge/internal/partition"
	"trackforge/internal/services"
)

const leasePollInterval = 50 * time.Millisecond

// lease serializes writers of one partition via a flock file under the
// warehouse root.
type lease struct {
	fl   *flock.Flock
	path string
}

// acquireLease blocks until the partition lease is held or the timeout
// elapses. A timeout reports a write conflict, retryable by the caller.
func acquireLease(ctx context.Context, warehouseDir string, key partition.Key, timeout time.Duration) (*lease, error) {
	lockDir := filepath.Join(warehouseDir, ".locks")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(lockDir, key.LeaseName())

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(path)
	ok, err := fl.TryLockContext(lockCtx, leasePollInterval)
	if err != nil && lockCtx.Err() == nil {
		return nil, fmt.Errorf("acquire partition lease: %w", err)
	}
	if !ok {
		return nil, services.Wrap(
			services.ErrWriteConflict,
			"writing",
			"acquire lease",
			fmt.Sprintf("partition %s is held by another writer", key),
			lockCtx.Err(),
		)
	}
	return &lease{fl: fl, path: path}, nil
}

func (l *lease) release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
