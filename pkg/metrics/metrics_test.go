package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloud-bulldozer/avap-bench/pkg/probe"
	result "github.com/cloud-bulldozer/avap-bench/pkg/results"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	c := NewCollector("run-1")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				c.Observe(false, "Unavailable", 0)
				return
			}
			c.Observe(true, "OK", 3*time.Millisecond)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 15.0, testutil.ToFloat64(c.calls.WithLabelValues("success", "OK")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.calls.WithLabelValues("failure", "Unavailable")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestRecordSummary(t *testing.T) {
	c := NewCollector("run-1")
	c.RecordSummary(result.Summary{
		Throughput: result.ThroughputReport{RequestsPerSecond: 2500, P95LatencyMs: 12, P99LatencyMs: 20},
		Bulk:       &probe.BulkTransferReport{TotalBytes: 60, DurationSeconds: 0.5},
		Verdict:    result.Verdict{Passed: true},
	})
	assert.Equal(t, 2500.0, testutil.ToFloat64(c.rps))
	assert.InDelta(t, 0.012, testutil.ToFloat64(c.p95), 1e-12)
	assert.InDelta(t, 0.020, testutil.ToFloat64(c.p99), 1e-12)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.passed))
	assert.Equal(t, 60.0, testutil.ToFloat64(c.bulkBytes))

	c.RecordSummary(result.Summary{Verdict: result.Verdict{Passed: false}})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.passed))
}

func TestPush(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body = r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	c := NewCollector("abc")
	c.Observe(true, "OK", time.Millisecond)
	require.NoError(t, c.Push(context.Background(), gw.URL, "avap-bench"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/metrics/job/avap-bench/uuid/abc", path)
	assert.Contains(t, body, "avap_bench_calls_total")
}

func TestPushUnreachable(t *testing.T) {
	c := NewCollector("abc")
	assert.Error(t, c.Push(context.Background(), "http://127.0.0.1:1", "avap-bench"))
}

type fakeQuerier struct {
	values map[string]model.Value
	err    error
}

func (f fakeQuerier) QueryRange(query string, _, _ time.Time, _ time.Duration) (model.Value, error) {
	if f.err != nil {
		return nil, f.err
	}
	for k, v := range f.values {
		if strings.Contains(query, k) {
			return v, nil
		}
	}
	return model.Matrix{}, nil
}

func series(vals ...float64) model.Matrix {
	s := &model.SampleStream{Metric: model.Metric{"job": "engine"}}
	for i, v := range vals {
		s.Values = append(s.Values, model.SamplePair{Timestamp: model.Time(i * 1000), Value: model.SampleValue(v)})
	}
	return model.Matrix{s}
}

func TestQueryEngine(t *testing.T) {
	conn := PromConnect{
		Selector: `job="engine"`,
		Client: fakeQuerier{values: map[string]model.Value{
			"process_cpu_seconds_total":     series(40, 60),
			"process_resident_memory_bytes": series(100, 200, 300),
		}},
	}
	now := time.Now()
	u, ok := QueryEngine(conn, now.Add(-time.Minute), now)
	require.True(t, ok)
	assert.Equal(t, 50.0, u.CPU)
	assert.Equal(t, 200.0, u.MemBytes)
}

func TestQueryEngineFailures(t *testing.T) {
	now := time.Now()
	_, ok := QueryEngine(PromConnect{Client: fakeQuerier{err: errors.New("boom")}}, now, now)
	assert.False(t, ok)
	_, ok = QueryEngine(PromConnect{Client: fakeQuerier{}}, now, now)
	assert.False(t, ok, "empty result must not be reported")
}

func TestStepFor(t *testing.T) {
	now := time.Now()
	assert.Equal(t, time.Second, stepFor(now, now.Add(2*time.Second)))
	assert.Equal(t, 6*time.Second, stepFor(now, now.Add(time.Minute)))
}
