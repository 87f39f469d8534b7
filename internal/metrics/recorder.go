package metrics

import (
	"time"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
)

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultAborted ResultLabel = "aborted"
)

// Recorder defines observability hooks for release history operations.
type Recorder interface {
	ObserveOperation(op string, d time.Duration, result ResultLabel)
	SetKnownReleases(app string, n int)
	AddPrunedReleases(app string, n int)
	AddPurgedDirectories(app string, n int)
	AddEvictedReleases(app string, n int)
	IncAssetSync(app string, result ResultLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveOperation(string, time.Duration, ResultLabel) {}
func (NoopRecorder) SetKnownReleases(string, int)                     {}
func (NoopRecorder) AddPrunedReleases(string, int)                    {}
func (NoopRecorder) AddPurgedDirectories(string, int)                 {}
func (NoopRecorder) AddEvictedReleases(string, int)                   {}
func (NoopRecorder) IncAssetSync(string, ResultLabel)                 {}

// ResultOf maps an operation error to its result label. Unmet
// preconditions count as aborted rather than failed.
func ResultOf(err error) ResultLabel {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.HasCategory(err, errors.CategoryPrecondition):
		return ResultAborted
	default:
		return ResultFailed
	}
}
