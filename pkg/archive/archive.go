package archive

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cloud-bulldozer/avap-bench/pkg/config"
	log "github.com/cloud-bulldozer/avap-bench/pkg/logging"
	"github.com/cloud-bulldozer/avap-bench/pkg/metrics"
	result "github.com/cloud-bulldozer/avap-bench/pkg/results"
	"github.com/cloud-bulldozer/go-commons/indexers"
)

const ltcyMetric = "ms"

// Doc struct of the JSON document to be indexed
type Doc struct {
	UUID          string               `json:"uuid"`
	Timestamp     time.Time            `json:"timestamp"`
	Target        string               `json:"target"`
	Command       string               `json:"command"`
	Concurrency   int                  `json:"concurrency"`
	TotalRequests int                  `json:"totalRequests"`
	Attempted     int                  `json:"attempted"`
	Successes     int                  `json:"successes"`
	Failures      int                  `json:"failures"`
	FailureCodes  map[string]int       `json:"failureCodes,omitempty"`
	Duration      float64              `json:"duration"`
	Throughput    float64              `json:"throughput"`
	ThresholdRPS  float64              `json:"thresholdRps"`
	Passed        bool                 `json:"passed"`
	Latency       float64              `json:"latency"`
	P95Latency    float64              `json:"p95Latency"`
	P99Latency    float64              `json:"p99Latency"`
	MinLatency    float64              `json:"minLatency"`
	MaxLatency    float64              `json:"maxLatency"`
	StdDevLatency float64              `json:"stdDevLatency"`
	LtcyMetric    string               `json:"ltcyMetric"`
	Confidence    []float64            `json:"confidence"`
	SyncItems     int                  `json:"syncItems"`
	SyncBytes     int                  `json:"syncBytes"`
	SyncDuration  float64              `json:"syncDuration"`
	SyncVersion   string               `json:"syncVersion,omitempty"`
	SyncValid     int                  `json:"syncValidPackages"`
	SyncError     string               `json:"syncError,omitempty"`
	Engine        *metrics.EngineUsage `json:"engine,omitempty"`
}

// Connect returns a client connected to the desired cluster.
func Connect(url, index string, skip bool) (*indexers.Indexer, error) {
	var err error
	var indexer *indexers.Indexer
	indexerConfig := indexers.IndexerConfig{
		Type:               "opensearch",
		Servers:            []string{url},
		Index:              index,
		InsecureSkipVerify: skip,
	}
	log.Infof("📁 Creating indexer: %s", indexerConfig.Type)
	indexer, err = indexers.NewIndexer(indexerConfig)
	if err != nil {
		log.Errorf("%v indexer: %v", indexerConfig.Type, err.Error())
		return nil, fmt.Errorf("failure while connecting to OpenSearch: %w", err)
	}
	log.Infof("Connected to : %s ", url)
	return indexer, nil
}

// BuildDoc returns the document describing one run.
func BuildDoc(s result.Summary, cfg config.Config, engine *metrics.EngineUsage, uuid string) Doc {
	t := s.Throughput
	d := Doc{
		UUID:          uuid,
		Timestamp:     time.Now().UTC(),
		Target:        cfg.Target,
		Command:       cfg.Command,
		Concurrency:   cfg.Concurrency,
		TotalRequests: cfg.TotalRequests,
		Attempted:     t.Attempted,
		Successes:     t.SuccessCount,
		Failures:      t.FailureCount,
		FailureCodes:  t.FailureCodes,
		Duration:      t.TotalDurationSeconds,
		Throughput:    t.RequestsPerSecond,
		ThresholdRPS:  s.Verdict.ThresholdRPS,
		Passed:        s.Verdict.Passed,
		Latency:       t.MeanLatencyMs,
		P95Latency:    t.P95LatencyMs,
		P99Latency:    t.P99LatencyMs,
		MinLatency:    t.MinLatencyMs,
		MaxLatency:    t.MaxLatencyMs,
		StdDevLatency: t.StdDevLatencyMs,
		LtcyMetric:    ltcyMetric,
		Confidence:    t.Confidence,
		Engine:        engine,
	}
	if s.Bulk != nil {
		d.SyncItems = s.Bulk.ItemCount
		d.SyncBytes = s.Bulk.TotalBytes
		d.SyncDuration = s.Bulk.DurationSeconds
		d.SyncVersion = s.Bulk.VersionHash
		d.SyncValid = s.Bulk.ValidPackages
	}
	if s.BulkErr != nil {
		d.SyncError = s.BulkErr.Error()
	}
	return d
}

// BuildDocs wraps BuildDoc for the indexer.
func BuildDocs(s result.Summary, cfg config.Config, engine *metrics.EngineUsage, uuid string) []interface{} {
	return []interface{}{BuildDoc(s, cfg, engine, uuid)}
}

// Index ships the documents to the indexer.
func Index(indexer *indexers.Indexer, docs []interface{}) error {
	resp, err := (*indexer).Index(docs, indexers.IndexingOpts{})
	if err != nil {
		return err
	}
	log.Info(resp)
	return nil
}

// WriteJSONResult writes the run document as JSON
func WriteJSONResult(w io.Writer, d Doc) error {
	p, err := json.MarshalIndent(d, " ", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(p))
	return err
}

func csvHeaderFields() []string {
	return []string{
		"UUID",
		"Target",
		"Command",
		"Concurrency",
		"Total Requests",
		"Attempted",
		"Successes",
		"Failures",
		"Duration (s)",
		"Throughput (RPS)",
		"Threshold (RPS)",
		"Passed",
		"Avg Latency",
		"P95 Latency",
		"P99 Latency",
		"Min Latency",
		"Max Latency",
		"Latency Metric",
		"Confidence metric - low",
		"Confidence metric - high",
		"Sync Items",
		"Sync Bytes",
		"Sync Duration (s)",
	}
}

func csvDataFields(d Doc) []string {
	var lo, hi float64
	if len(d.Confidence) == 2 {
		lo, hi = d.Confidence[0], d.Confidence[1]
	}
	return []string{
		d.UUID,
		d.Target,
		d.Command,
		strconv.Itoa(d.Concurrency),
		strconv.Itoa(d.TotalRequests),
		strconv.Itoa(d.Attempted),
		strconv.Itoa(d.Successes),
		strconv.Itoa(d.Failures),
		fmt.Sprintf("%f", d.Duration),
		fmt.Sprintf("%f", d.Throughput),
		fmt.Sprintf("%f", d.ThresholdRPS),
		strconv.FormatBool(d.Passed),
		fmt.Sprintf("%f", d.Latency),
		fmt.Sprintf("%f", d.P95Latency),
		fmt.Sprintf("%f", d.P99Latency),
		fmt.Sprintf("%f", d.MinLatency),
		fmt.Sprintf("%f", d.MaxLatency),
		d.LtcyMetric,
		strconv.FormatFloat(lo, 'f', -1, 64),
		strconv.FormatFloat(hi, 'f', -1, 64),
		strconv.Itoa(d.SyncItems),
		strconv.Itoa(d.SyncBytes),
		fmt.Sprintf("%f", d.SyncDuration),
	}
}

// WriteCSVResult will write the run result to the local filesystem and return
// the file name.
func WriteCSVResult(d Doc) (string, error) {
	name := fmt.Sprintf("result-%d.csv", time.Now().Unix())
	fp, err := os.Create(name)
	if err != nil {
		return "", fmt.Errorf("failed to open archive file")
	}
	defer fp.Close()
	archive := csv.NewWriter(fp)

	if err := archive.Write(csvHeaderFields()); err != nil {
		return "", fmt.Errorf("failed to write result archive to file")
	}
	if err := archive.Write(csvDataFields(d)); err != nil {
		return "", fmt.Errorf("failed to write archive to file")
	}
	archive.Flush()
	if err := archive.Error(); err != nil {
		return "", fmt.Errorf("failed to flush archive: %w", err)
	}
	return name, nil
}
