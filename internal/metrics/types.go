// internal/metrics/types.go
package metrics

import (
	"math"
	"time"
)

// Sample is the measurement of one prediction against a workflow.
type Sample struct {
	Workflow  string
	Streaming bool
	// FirstChunk is the time until the first token, or until the whole answer for
	// non-streaming calls. Zero when nothing arrived.
	FirstChunk time.Duration
	Chunks     int
	Characters int
	Duration   time.Duration
	Failed     bool
}

// WorkflowMetrics is the top-level document for a single workflow's aggregated data.
type WorkflowMetrics struct {
	Workflow       string                 `json:"workflow"`
	LastUpdatedUTC time.Time              `json:"last_updated_utc"`
	OverallStats   RunningAggregatedStats `json:"overall_stats"`
	ModeBuckets    []PerformanceBucket    `json:"mode_buckets"`
}

// PerformanceBucket holds aggregated stats for one value of a dimension, such as
// streaming versus blocking predictions.
type PerformanceBucket struct {
	Dimension string                 `json:"dimension"`
	Bucket    string                 `json:"bucket"`
	Stats     RunningAggregatedStats `json:"stats"`
}

// RunningAggregatedStats stores the running statistical values for a set of metrics.
// It uses Welford's online algorithm for calculating mean and standard deviation.
type RunningAggregatedStats struct {
	TotalRequests int64 `json:"total_requests"`
	Errors        int64 `json:"errors"`

	TTFTMillis          RunningStat `json:"ttft_ms"`
	ChunksPerSecond     RunningStat `json:"chunks_per_second"`
	OutputChunks        RunningStat `json:"output_chunks"`
	OutputCharacters    RunningStat `json:"output_characters"`
	TotalDurationMillis RunningStat `json:"total_duration_ms"`
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
// Count and M2 are persisted so a reloaded aggregate keeps accumulating correctly.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// StdDev returns the sample standard deviation, or zero with fewer than two values.
func (rs RunningStat) StdDev() float64 {
	if rs.Count < 2 {
		return 0
	}
	return math.Sqrt(rs.M2 / float64(rs.Count-1))
}
