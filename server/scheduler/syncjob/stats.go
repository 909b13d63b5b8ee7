package syncjob

import "time"

// Stats are cumulative counters of one Scheduler. They are never reset.
type Stats struct {
	TotalRuns           int64 `json:"totalRuns"`
	TotalSuccesses      int64 `json:"totalSuccesses"`
	TotalFailures       int64 `json:"totalFailures"`
	ConsecutiveFailures int64 `json:"consecutiveFailures"`

	LastRunTime     time.Time `json:"lastRunTime"`
	LastSuccessTime time.Time `json:"lastSuccessTime"`
	LastRunID       string    `json:"lastRunId,omitempty"`
	LastError       string    `json:"lastError,omitempty"`

	LastRunDuration    time.Duration `json:"lastRunDuration"`
	AverageRunDuration time.Duration `json:"averageRunDuration"`
	MaxRunDuration     time.Duration `json:"maxRunDuration"`
	MinRunDuration     time.Duration `json:"minRunDuration"`

	TotalMessagesProcessed int64 `json:"totalMessagesProcessed"`
	TotalBatchesProcessed  int64 `json:"totalBatchesProcessed"`
	LastBatchSize          int   `json:"lastBatchSize"`
}

// recordFailure counts one failed attempt.
func (s *Stats) recordFailure(err error) {
	s.TotalFailures++
	s.ConsecutiveFailures++
	s.LastError = err.Error()
}

// recordRun folds the duration of a finished run into the running figures.
func (s *Stats) recordRun(runID string, started time.Time, d time.Duration) {
	s.TotalRuns++
	s.LastRunID = runID
	s.LastRunTime = started
	s.LastRunDuration = d

	if s.TotalRuns == 1 || d < s.MinRunDuration {
		s.MinRunDuration = d
	}
	if d > s.MaxRunDuration {
		s.MaxRunDuration = d
	}
	// Incremental mean.
	s.AverageRunDuration += (d - s.AverageRunDuration) / time.Duration(s.TotalRuns)
}

func (s *Stats) recordSuccess(finished time.Time, processed, batches, lastBatchSize int) {
	s.TotalSuccesses++
	s.ConsecutiveFailures = 0
	s.LastError = ""
	s.LastSuccessTime = finished
	s.TotalMessagesProcessed += int64(processed)
	s.TotalBatchesProcessed += int64(batches)
	s.LastBatchSize = lastBatchSize
}
