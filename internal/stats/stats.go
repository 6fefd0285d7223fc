// Package stats computes aggregate counters over the job registry.
package stats

import (
	"fmt"

	"pictor/internal/model"
)

// Lister is the registry surface the aggregator needs: one consistent
// point-in-time snapshot of all records.
type Lister interface {
	List() []model.JobRecord
}

// Summary is the aggregate view returned by GET /api/stats.
type Summary struct {
	Total                        int     `json:"total"`
	Failed                       int     `json:"failed"`
	SuccessRate                  string  `json:"success_rate"`
	AverageProcessingTimeSeconds float64 `json:"average_processing_time_seconds"`
}

// Compute derives all counters from a single List snapshot so the
// fields are mutually consistent even under concurrent mutation.
func Compute(l Lister) Summary {
	recs := l.List()

	total := len(recs)
	failed := 0
	terminal := 0
	var durationSum float64
	for _, rec := range recs {
		if rec.Status == model.StatusFailed {
			failed++
		}
		if rec.Status.Terminal() {
			terminal++
			durationSum += rec.ProcessingDurationSeconds
		}
	}

	rate := 0.0
	if total > 0 {
		rate = float64(total-failed) / float64(total) * 100
	}

	avg := 0.0
	if terminal > 0 {
		avg = durationSum / float64(terminal)
	}

	return Summary{
		Total:                        total,
		Failed:                       failed,
		SuccessRate:                  fmt.Sprintf("%.2f%%", rate),
		AverageProcessingTimeSeconds: avg,
	}
}
