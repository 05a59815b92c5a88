package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cloud-bulldozer/avap-bench/pkg/client"
	"github.com/cloud-bulldozer/avap-bench/pkg/config"
	"github.com/cloud-bulldozer/avap-bench/pkg/enginetest"
	result "github.com/cloud-bulldozer/avap-bench/pkg/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEngine(t *testing.T, e *enginetest.Engine) *enginetest.Server {
	if e.Catalog == nil {
		e.Catalog = []client.CommandRecord{{Name: "if", Code: []byte("bytecode")}}
	}
	srv, err := enginetest.Start(e)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *enginetest.Server) config.Config {
	cfg := config.Default()
	cfg.Target = srv.Target()
	cfg.Concurrency = 5
	cfg.TotalRequests = 50
	cfg.ThresholdRPS = 1
	cfg.WaitReady = 0
	return cfg
}

func TestBenchmarkPasses(t *testing.T) {
	srv := startEngine(t, &enginetest.Engine{})
	var out bytes.Buffer
	code := benchmark(context.Background(), testConfig(srv), "run-1", &out, srv.DialOptions())
	assert.Equal(t, result.ExitPass, code)
	assert.Contains(t, out.String(), "PASS")
	assert.Contains(t, out.String(), "Sync: 1 items")
	assert.Equal(t, int64(50), srv.Calls())
}

func TestBenchmarkUnderBudget(t *testing.T) {
	srv := startEngine(t, &enginetest.Engine{Delay: 2 * time.Millisecond})
	cfg := testConfig(srv)
	cfg.ThresholdRPS = 1e9
	cfg.SkipSync = true
	var out bytes.Buffer
	assert.Equal(t, result.ExitFail, benchmark(context.Background(), cfg, "run-1", &out, srv.DialOptions()))
	assert.Contains(t, out.String(), "FAIL")
	assert.NotContains(t, out.String(), "Sync:")
}

func TestBenchmarkAllCallsRejected(t *testing.T) {
	srv := startEngine(t, &enginetest.Engine{})
	cfg := testConfig(srv)
	cfg.AuthToken = "WRONG_TOKEN"
	var out bytes.Buffer
	assert.Equal(t, result.ExitFail, benchmark(context.Background(), cfg, "run-1", &out, srv.DialOptions()))
	assert.Empty(t, out.String(), "no report without a latency sample")
}

func TestBenchmarkUnreachable(t *testing.T) {
	srv, err := enginetest.Start(&enginetest.Engine{})
	require.NoError(t, err)
	srv.Close()
	cfg := testConfig(srv)
	cfg.WaitReady = 100 * time.Millisecond
	var out bytes.Buffer
	assert.Equal(t, result.ExitFail, benchmark(context.Background(), cfg, "run-1", &out, srv.DialOptions()))
}

func TestBenchmarkJSON(t *testing.T) {
	json = true
	defer func() { json = false }()
	srv := startEngine(t, &enginetest.Engine{})
	var out bytes.Buffer
	code := benchmark(context.Background(), testConfig(srv), "run-json", &out, srv.DialOptions())
	assert.Equal(t, result.ExitPass, code)
	assert.Contains(t, out.String(), `"uuid": "run-json"`)
	assert.Contains(t, out.String(), `"passed": true`)
}
