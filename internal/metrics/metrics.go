// Package metrics keeps simple Prometheus-style counters for the service.
// Intentionally minimal and in-memory only.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	mu sync.RWMutex

	jobsSubmitted int64
	jobsCompleted int64
	jobsFailed    = make(map[string]int64) // by error code

	stageSecondsSum   = make(map[string]float64)
	stageSecondsCount = make(map[string]int64)

	queueDepth int64
)

// RecordSubmitted increments the submission counter.
func RecordSubmitted() {
	mu.Lock()
	jobsSubmitted++
	mu.Unlock()
}

// RecordCompleted increments the completion counter.
func RecordCompleted() {
	mu.Lock()
	jobsCompleted++
	mu.Unlock()
}

// RecordFailed increments the failure counter for an error code.
func RecordFailed(code string) {
	mu.Lock()
	jobsFailed[code]++
	mu.Unlock()
}

// RecordStage records how long one pipeline stage took.
func RecordStage(stage string, d time.Duration) {
	mu.Lock()
	stageSecondsSum[stage] += d.Seconds()
	stageSecondsCount[stage]++
	mu.Unlock()
}

// SetQueueDepth records the current number of unclaimed jobs.
func SetQueueDepth(n int) {
	mu.Lock()
	queueDepth = int64(n)
	mu.Unlock()
}

// Render emits the metrics in Prometheus text exposition format.
func Render() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "# TYPE lyrix_jobs_submitted_total counter\n")
	fmt.Fprintf(&b, "lyrix_jobs_submitted_total %d\n", jobsSubmitted)
	fmt.Fprintf(&b, "# TYPE lyrix_jobs_completed_total counter\n")
	fmt.Fprintf(&b, "lyrix_jobs_completed_total %d\n", jobsCompleted)

	fmt.Fprintf(&b, "# TYPE lyrix_jobs_failed_total counter\n")
	for _, code := range sortedKeys(jobsFailed) {
		fmt.Fprintf(&b, "lyrix_jobs_failed_total{code=%q} %d\n", code, jobsFailed[code])
	}

	fmt.Fprintf(&b, "# TYPE lyrix_stage_seconds_sum counter\n")
	stages := make([]string, 0, len(stageSecondsSum))
	for s := range stageSecondsSum {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	for _, s := range stages {
		fmt.Fprintf(&b, "lyrix_stage_seconds_sum{stage=%q} %f\n", s, stageSecondsSum[s])
		fmt.Fprintf(&b, "lyrix_stage_seconds_count{stage=%q} %d\n", s, stageSecondsCount[s])
	}

	fmt.Fprintf(&b, "# TYPE lyrix_queue_depth gauge\n")
	fmt.Fprintf(&b, "lyrix_queue_depth %d\n", queueDepth)
	return b.String()
}

// Reset clears all counters. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	jobsSubmitted, jobsCompleted, queueDepth = 0, 0, 0
	jobsFailed = make(map[string]int64)
	stageSecondsSum = make(map[string]float64)
	stageSecondsCount = make(map[string]int64)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
