package metrics

import (
	"fmt"
	"time"

	log "github.com/cloud-bulldozer/avap-bench/pkg/logging"
	"github.com/cloud-bulldozer/go-commons/prometheus"
	"github.com/prometheus/common/model"
)

// Querier is the subset of the Prometheus client used here.
type Querier interface {
	QueryRange(query string, start, end time.Time, step time.Duration) (model.Value, error)
}

// PromConnect stores the prom information
type PromConnect struct {
	URL      string
	Token    string
	Selector string
	Verify   bool
	Client   Querier
}

// EngineUsage is the resource footprint of the definition engine during the batch.
type EngineUsage struct {
	CPU      float64 `json:"engineCPU"`
	MemBytes float64 `json:"engineMemBytes"`
}

// Connect opens the Prometheus client described by pcon.
func Connect(pcon *PromConnect) error {
	c, err := prometheus.NewClient(pcon.URL, pcon.Token, "", "", pcon.Verify)
	if err != nil {
		return fmt.Errorf("connecting to prometheus %s: %w", pcon.URL, err)
	}
	pcon.Client = c
	return nil
}

// QueryEngine averages the engine process CPU (percent of a core) and resident
// memory between start and end.
func QueryEngine(conn PromConnect, start, end time.Time) (EngineUsage, bool) {
	var usage EngineUsage
	step := stepFor(start, end)
	query := fmt.Sprintf("sum(irate(process_cpu_seconds_total{%s}[1m])) * 100", conn.Selector)
	cpu, ok := queryAvg(conn, query, start, end, step)
	if !ok {
		return usage, false
	}
	usage.CPU = cpu
	query = fmt.Sprintf("sum(process_resident_memory_bytes{%s})", conn.Selector)
	mem, ok := queryAvg(conn, query, start, end, step)
	if !ok {
		return usage, false
	}
	usage.MemBytes = mem
	return usage, true
}

func queryAvg(conn PromConnect, query string, start, end time.Time, step time.Duration) (float64, bool) {
	log.Debugf("Prom Query : %s", query)
	val, err := conn.Client.QueryRange(query, start, end, step)
	if err != nil {
		log.Errorf("Issue querying Prometheus: %v", err)
		return 0, false
	}
	m, ok := val.(model.Matrix)
	if !ok || len(m) == 0 {
		log.Warnf("No samples for %s", query)
		return 0, false
	}
	return avg(m[0].Values), true
}

// Short batches still get a few points.
func stepFor(start, end time.Time) time.Duration {
	step := end.Sub(start) / 10
	if step < time.Second {
		return time.Second
	}
	return step
}

// Calculates average for the given data
func avg(data []model.SamplePair) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for s := range data {
		sum += float64(data[s].Value)
	}
	return sum / float64(len(data))
}
