package integration

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus is the outcome of one order sync run.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusPartial SyncStatus = "PARTIAL"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// ResolveSyncStatus derives the run outcome from its counts. A run that
// pulled nothing and failed nothing is still a success.
func ResolveSyncStatus(pulled, failed int) SyncStatus {
	switch {
	case failed == 0:
		return SyncStatusSuccess
	case pulled > 0:
		return SyncStatusPartial
	default:
		return SyncStatusFailed
	}
}

// SyncRun records one window of order pulling from a channel.
type SyncRun struct {
	ID      uuid.UUID
	Channel ChannelCode

	// Since and Until bound the pulled window.
	Since time.Time
	Until time.Time

	// Pulled counts orders persisted; Failed counts orders that could not
	// be normalized or pages that could not be fetched.
	Pulled int
	Failed int

	Status SyncStatus
	// Error holds the first failure message when the run is not a success.
	Error string

	StartedAt  time.Time
	FinishedAt *time.Time
}

// Finish closes the run, deriving its status from the counts unless an
// overall error forced a failure.
func (r *SyncRun) Finish(now time.Time, err error) {
	r.FinishedAt = &now
	if err != nil {
		r.Status = SyncStatusFailed
		if r.Pulled > 0 {
			r.Status = SyncStatusPartial
		}
		if r.Error == "" {
			r.Error = err.Error()
		}
		return
	}
	r.Status = ResolveSyncStatus(r.Pulled, r.Failed)
}

// Duration returns how long the run took, zero while still running.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
