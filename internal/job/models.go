package job

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a transform run.
type Status string

const (
	StatusPending     Status = "pending"
	StatusReading     Status = "reading"
	StatusNormalizing Status = "normalizing"
	StatusEnriching   Status = "enriching"
	StatusWriting     Status = "writing"
	StatusCommitted   Status = "committed"
	StatusDegraded    Status = "degraded"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusReading,
	StatusNormalizing,
	StatusEnriching,
	StatusWriting,
	StatusCommitted,
	StatusDegraded,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusReading:     {},
	StatusNormalizing: {},
	StatusEnriching:   {},
	StatusWriting:     {},
}

// ParseStatus validates a user-supplied status string.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// Terminal reports whether the run reached a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCommitted, StatusDegraded, StatusFailed:
		return true
	}
	return false
}

// Processing reports whether the run is mid-pipeline.
func (s Status) Processing() bool {
	_, ok := processingStatuses[s]
	return ok
}

// Trigger describes one snapshot arrival: a snapshot id and the path of the
// raw snapshot document to transform.
type Trigger struct {
	SnapshotID string
	Location   string
}

// Run is the persisted record of one transform job execution.
type Run struct {
	ID             int64
	SnapshotID     string
	PlaylistID     string
	Location       string
	Status         Status
	Stage          string
	Degraded       bool
	ErrorKind      string
	ErrorMessage   string
	FailedTrackIDs []string
	PartitionKey   string
	TrackCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// HealthSummary aggregates run state for diagnostic output.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Committed  int
	Degraded   int
	Failed     int
}
