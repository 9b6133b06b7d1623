// internal/metrics/aggregator.go
package metrics

import (
	"encoding/json"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/util"
)

// DefaultSaveInterval is how often a file-backed aggregator persists its metrics.
const DefaultSaveInterval = time.Minute

// Aggregator collects and manages performance metrics for workflows.
type Aggregator struct {
	mutex    sync.Mutex
	metrics  map[string]*WorkflowMetrics
	filePath string
	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once

	// saveMu serializes writes to filePath.
	saveMu sync.Mutex
}

// NewAggregator creates an Aggregator. When filePath is set, previously saved metrics
// are loaded from it and the aggregate is written back every saveEvery.
func NewAggregator(filePath string, saveEvery time.Duration) *Aggregator {
	agg := &Aggregator{
		metrics:  make(map[string]*WorkflowMetrics),
		filePath: strings.TrimSpace(filePath),
		stop:     make(chan struct{}),
	}
	if agg.filePath == "" {
		return agg
	}

	agg.load()
	if saveEvery > 0 {
		agg.ticker = time.NewTicker(saveEvery)
		agg.done = make(chan struct{})
		go func() {
			defer close(agg.done)
			for {
				select {
				case <-agg.ticker.C:
					if err := agg.Save(); err != nil {
						logging.LogEvent("[METRICS] save failed: %v", err)
					}
				case <-agg.stop:
					return
				}
			}
		}()
	}
	return agg
}

// load reads metrics from the JSON file into memory.
func (a *Aggregator) load() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	data, err := os.ReadFile(a.filePath)
	if err != nil {
		return
	}

	var metricsSlice []*WorkflowMetrics
	if err := json.Unmarshal(data, &metricsSlice); err != nil {
		logging.LogEvent("[METRICS] ignoring unreadable metrics file %s: %v", a.filePath, err)
		return
	}

	for _, m := range metricsSlice {
		if m != nil && m.Workflow != "" {
			a.metrics[m.Workflow] = m
		}
	}
}

// Save writes the current metrics to the configured file. It is a no-op for
// in-memory aggregators.
func (a *Aggregator) Save() error {
	if a.filePath == "" {
		return nil
	}
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	data, err := json.MarshalIndent(a.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	logging.LogEvent("[METRICS] Saving metrics to %s", a.filePath)
	return util.WriteFile(a.filePath, data)
}

// Snapshot returns a copy of the metrics ordered by workflow id.
func (a *Aggregator) Snapshot() []WorkflowMetrics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]WorkflowMetrics, 0, len(a.metrics))
	for _, m := range a.metrics {
		cp := *m
		cp.ModeBuckets = slices.Clone(m.ModeBuckets)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(x, y WorkflowMetrics) int { return strings.Compare(x.Workflow, y.Workflow) })
	return out
}

// Record updates the metrics for the sample's workflow.
func (a *Aggregator) Record(s Sample) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	workflowMetrics, exists := a.metrics[s.Workflow]
	if !exists {
		workflowMetrics = &WorkflowMetrics{Workflow: s.Workflow}
		a.metrics[s.Workflow] = workflowMetrics
	}

	workflowMetrics.LastUpdatedUTC = time.Now().UTC()
	updateStats(&workflowMetrics.OverallStats, s)

	bucket := modeBucket(s.Streaming)
	for i := range workflowMetrics.ModeBuckets {
		if workflowMetrics.ModeBuckets[i].Bucket == bucket {
			updateStats(&workflowMetrics.ModeBuckets[i].Stats, s)
			return
		}
	}
	newBucket := PerformanceBucket{Dimension: "mode", Bucket: bucket}
	updateStats(&newBucket.Stats, s)
	workflowMetrics.ModeBuckets = append(workflowMetrics.ModeBuckets, newBucket)
}

// updateStats updates the running statistics with one sample. Failed samples only
// count toward the request and error totals.
func updateStats(stats *RunningAggregatedStats, s Sample) {
	stats.TotalRequests++
	if s.Failed {
		stats.Errors++
		return
	}

	updateRunningStat(&stats.TTFTMillis, float64(s.FirstChunk.Milliseconds()))

	var chunksPerSecond float64
	if s.Duration > 0 {
		chunksPerSecond = float64(s.Chunks) / s.Duration.Seconds()
	}
	updateRunningStat(&stats.ChunksPerSecond, chunksPerSecond)
	updateRunningStat(&stats.OutputChunks, float64(s.Chunks))
	updateRunningStat(&stats.OutputCharacters, float64(s.Characters))
	updateRunningStat(&stats.TotalDurationMillis, float64(s.Duration.Milliseconds()))
}

// updateRunningStat updates a single running statistic using Welford's online algorithm.
func updateRunningStat(rs *RunningStat, value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		rs.Min = min(rs.Min, value)
		rs.Max = max(rs.Max, value)
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

func modeBucket(streaming bool) string {
	if streaming {
		return "stream"
	}
	return "blocking"
}

// Close stops the periodic save and writes the metrics one last time.
func (a *Aggregator) Close() error {
	a.once.Do(func() {
		if a.ticker != nil {
			a.ticker.Stop()
		}
		close(a.stop)
	})
	if a.done != nil {
		<-a.done
	}
	return a.Save()
}
