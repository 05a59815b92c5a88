package result

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cloud-bulldozer/avap-bench/pkg/driver"
	moremath "github.com/aclements/go-moremath/stats"
	stats "github.com/montanaflynn/stats"
)

// ThroughputReport reduces one concurrent batch.
type ThroughputReport struct {
	TotalDurationSeconds float64        `json:"totalDurationSeconds"`
	Attempted            int            `json:"attempted"`
	SuccessCount         int            `json:"successCount"`
	FailureCount         int            `json:"failureCount"`
	RequestsPerSecond    float64        `json:"requestsPerSecond"`
	MeanLatencyMs        float64        `json:"meanLatencyMs"`
	P95LatencyMs         float64        `json:"p95LatencyMs"`
	P99LatencyMs         float64        `json:"p99LatencyMs"`
	MinLatencyMs         float64        `json:"minLatencyMs"`
	MaxLatencyMs         float64        `json:"maxLatencyMs"`
	StdDevLatencyMs      float64        `json:"stdDevLatencyMs"`
	Confidence           []float64      `json:"confidence"`
	FailureCodes         map[string]int `json:"failureCodes,omitempty"`
	StartTime            time.Time      `json:"startTime"`
	EndTime              time.Time      `json:"endTime"`
}

// InsufficientDataError is returned when no call succeeded, so no latency
// statistic is defined.
type InsufficientDataError struct {
	Attempted int
	Failed    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("no successful samples: %d of %d calls failed", e.Failed, e.Attempted)
}

// Average accepts array of floats to calculate average
func Average(vals []float64) (float64, error) {
	return stats.Mean(vals)
}

// ConfidenceInterval accepts array of floats and returns the mean and its interval
func ConfidenceInterval(vals []float64, ci float64) (float64, float64, float64) {
	return moremath.MeanCI(vals, ci)
}

// RequestsPerSecond is successCount over the batch wall clock.
func RequestsPerSecond(successCount int, durationSeconds float64) float64 {
	return float64(successCount) / durationSeconds
}

// Quantiles returns the n-1 cut points dividing sorted into n intervals of equal
// probability. Cut point i sits at position i*(m+1)/n of the m samples and is
// interpolated between its neighbours; positions past either end extrapolate
// from the first or last pair. This is the exclusive convention of Python's
// statistics.quantiles. sorted must be ascending and not empty.
func Quantiles(sorted []float64, n int) []float64 {
	ld := len(sorted)
	cuts := make([]float64, 0, n-1)
	if ld == 1 {
		for i := 1; i < n; i++ {
			cuts = append(cuts, sorted[0])
		}
		return cuts
	}
	m := ld + 1
	for i := 1; i < n; i++ {
		j := i * m / n
		if j < 1 {
			j = 1
		} else if j > ld-1 {
			j = ld - 1
		}
		delta := i*m - j*n
		cuts = append(cuts, (sorted[j-1]*float64(n-delta)+sorted[j]*float64(delta))/float64(n))
	}
	return cuts
}

// Percentile returns the upper boundary of bin k when sorted is split into n bins,
// e.g. Percentile(s, 20, 19) is the 95th percentile.
func Percentile(sorted []float64, n, k int) float64 {
	return Quantiles(sorted, n)[k-1]
}

// Compute reduces the successful latencies (ms) of a batch that lasted duration.
func Compute(latencies []float64, duration time.Duration) (ThroughputReport, error) {
	if len(latencies) == 0 {
		return ThroughputReport{}, &InsufficientDataError{}
	}
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	r := ThroughputReport{
		TotalDurationSeconds: duration.Seconds(),
		Attempted:            len(sorted),
		SuccessCount:         len(sorted),
	}
	r.RequestsPerSecond = RequestsPerSecond(r.SuccessCount, r.TotalDurationSeconds)
	r.MeanLatencyMs, _ = Average(sorted)
	r.P95LatencyMs = Percentile(sorted, 20, 19)
	r.P99LatencyMs = Percentile(sorted, 100, 99)
	r.MinLatencyMs = sorted[0]
	r.MaxLatencyMs = sorted[len(sorted)-1]
	r.StdDevLatencyMs, _ = stats.StandardDeviation(sorted)
	if len(sorted) > 1 {
		_, lo, hi := ConfidenceInterval(sorted, 0.95)
		if !math.IsNaN(lo) && !math.IsNaN(hi) {
			r.Confidence = []float64{lo, hi}
		}
	}
	return r, nil
}

// FromRun reduces a driver batch into a ThroughputReport.
func FromRun(res driver.Result) (ThroughputReport, error) {
	r, err := Compute(res.Store.Latencies(), res.Duration)
	if err != nil {
		return r, &InsufficientDataError{Attempted: res.Attempted, Failed: res.Failures}
	}
	r.Attempted = res.Attempted
	r.FailureCount = res.Failures
	r.FailureCodes = res.FailureCodes
	r.StartTime = res.StartTime
	r.EndTime = res.EndTime
	return r, nil
}
