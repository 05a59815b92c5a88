package archive

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/cloud-bulldozer/avap-bench/pkg/config"
	"github.com/cloud-bulldozer/avap-bench/pkg/metrics"
	"github.com/cloud-bulldozer/avap-bench/pkg/probe"
	result "github.com/cloud-bulldozer/avap-bench/pkg/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summary() result.Summary {
	t := result.ThroughputReport{
		TotalDurationSeconds: 2,
		Attempted:            10,
		SuccessCount:         9,
		FailureCount:         1,
		RequestsPerSecond:    4.5,
		MeanLatencyMs:        3,
		P95LatencyMs:         5,
		P99LatencyMs:         6,
		Confidence:           []float64{2.5, 3.5},
		FailureCodes:         map[string]int{"Unavailable": 1},
	}
	return result.Summary{
		Throughput: t,
		Bulk:       &probe.BulkTransferReport{ItemCount: 3, TotalBytes: 60, VersionHash: "v-3", ValidPackages: 3},
		Verdict:    result.Evaluate(t, 4),
	}
}

func TestBuildDoc(t *testing.T) {
	cfg := config.Default()
	d := BuildDoc(summary(), cfg, &metrics.EngineUsage{CPU: 12}, "abc")
	assert.Equal(t, "abc", d.UUID)
	assert.Equal(t, cfg.Target, d.Target)
	assert.Equal(t, 9, d.Successes)
	assert.Equal(t, 4.5, d.Throughput)
	assert.True(t, d.Passed)
	assert.Equal(t, 60, d.SyncBytes)
	assert.Equal(t, "v-3", d.SyncVersion)
	assert.Equal(t, 12.0, d.Engine.CPU)
	assert.Empty(t, d.SyncError)
	assert.Len(t, BuildDocs(summary(), cfg, nil, "abc"), 1)
}

func TestBuildDocProbeFailure(t *testing.T) {
	s := summary()
	s.Bulk = nil
	s.BulkErr = errors.New("unavailable")
	d := BuildDoc(s, config.Default(), nil, "abc")
	assert.Equal(t, "unavailable", d.SyncError)
	assert.Zero(t, d.SyncItems)
	assert.Nil(t, d.Engine)
}

func TestWriteJSONResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONResult(&buf, BuildDoc(summary(), config.Default(), nil, "abc")))
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "abc", got["uuid"])
	assert.Equal(t, 5.0, got["p95Latency"])
	assert.NotContains(t, got, "engine")
}

func TestWriteCSVResult(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	name, err := WriteCSVResult(BuildDoc(summary(), config.Default(), nil, "abc"))
	require.NoError(t, err)
	fp, err := os.Open(name)
	require.NoError(t, err)
	defer fp.Close()
	rows, err := csv.NewReader(fp).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, len(rows[0]), len(rows[1]))
	assert.Equal(t, "UUID", rows[0][0])
	assert.Equal(t, "abc", rows[1][0])
	assert.Equal(t, "2.5", rows[1][18])
}
