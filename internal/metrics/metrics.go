package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for HTTP requests and the image
// pipeline. This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	jobsProcessed = make(map[string]int64)
	stepFailures  = make(map[string]int64)
	thumbCache    = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordJobProcessed increments the counter of finished pipeline tasks
// by outcome ("success" or "failed").
func RecordJobProcessed(outcome string) {
	mu.Lock()
	defer mu.Unlock()
	jobsProcessed[outcome]++
}

// RecordStepFailure increments the counter of pipeline step failures
// by step kind. The step kind never reaches API clients; it exists for
// this metric and for logs.
func RecordStepFailure(step string) {
	mu.Lock()
	defer mu.Unlock()
	stepFailures[step]++
}

// RecordThumbnailCache increments hit/miss counters for the optional
// Redis thumbnail cache.
func RecordThumbnailCache(hit bool) {
	mu.Lock()
	defer mu.Unlock()
	if hit {
		thumbCache["hit"]++
	} else {
		thumbCache["miss"]++
	}
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP pictor_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE pictor_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "pictor_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP pictor_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE pictor_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP pictor_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE pictor_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		sum := latencyMsSum[k]
		cnt := latencyMsCount[k]
		fmt.Fprintf(&b, "pictor_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, sum)
		fmt.Fprintf(&b, "pictor_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, cnt)
	}

	// Pipeline metrics
	b.WriteString("# HELP pictor_jobs_processed_total Total pipeline tasks finished by outcome\n")
	b.WriteString("# TYPE pictor_jobs_processed_total counter\n")

	var outcomes []string
	for o := range jobsProcessed {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(&b, "pictor_jobs_processed_total{outcome=\"%s\"} %d\n", o, jobsProcessed[o])
	}

	b.WriteString("# HELP pictor_pipeline_step_failures_total Total pipeline step failures by step kind\n")
	b.WriteString("# TYPE pictor_pipeline_step_failures_total counter\n")

	var steps []string
	for s := range stepFailures {
		steps = append(steps, s)
	}
	sort.Strings(steps)
	for _, s := range steps {
		fmt.Fprintf(&b, "pictor_pipeline_step_failures_total{step=\"%s\"} %d\n", s, stepFailures[s])
	}

	b.WriteString("# HELP pictor_thumbnail_cache_total Thumbnail cache lookups by result\n")
	b.WriteString("# TYPE pictor_thumbnail_cache_total counter\n")

	var results []string
	for r := range thumbCache {
		results = append(results, r)
	}
	sort.Strings(results)
	for _, r := range results {
		fmt.Fprintf(&b, "pictor_thumbnail_cache_total{result=\"%s\"} %d\n", r, thumbCache[r])
	}

	return b.String()
}
