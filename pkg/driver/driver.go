package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloud-bulldozer/avap-bench/pkg/client"
	log "github.com/cloud-bulldozer/avap-bench/pkg/logging"
	"github.com/cloud-bulldozer/avap-bench/pkg/sample"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
)

// EmptyResponse labels OK responses rejected because they carried no code.
const EmptyResponse = "EMPTY_RESPONSE"

// Caller is the single lookup the driver puts under load.
type Caller interface {
	GetCommand(ctx context.Context, name, authToken string) (client.CommandRecord, error)
}

// Observer is told about every timed call, in completion order. Successful
// calls carry the OK code.
type Observer interface {
	Observe(success bool, code string, elapsed time.Duration)
}

// Options describe the workload.
type Options struct {
	Concurrency    int
	TotalRequests  int
	Command        string
	AuthToken      string
	RequestTimeout time.Duration
	GlobalTimeout  time.Duration
	Warmup         int
	RequireCode    bool
	Observer       Observer
}

// Result is what one batch produced.
type Result struct {
	Store        *sample.Store
	Attempted    int
	Failures     int
	FailureCodes map[string]int
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}

type run struct {
	opts   Options
	caller Caller
	store  *sample.Store
	done   atomic.Int64
	step   int64

	mu    sync.Mutex
	codes map[string]int
}

// Run issues opts.TotalRequests identical lookups with at most opts.Concurrency
// in flight. Failed calls are counted, never retried, and never contribute a
// latency sample. The only errors returned are for invalid options.
func Run(ctx context.Context, c Caller, opts Options) (Result, error) {
	if opts.Concurrency < 1 {
		return Result{}, fmt.Errorf("concurrency must be > 0")
	}
	if opts.TotalRequests < 1 {
		return Result{}, fmt.Errorf("total requests must be > 0")
	}
	r := &run{
		opts:   opts,
		caller: c,
		store:  sample.NewStore(opts.TotalRequests),
		step:   int64(max(1, opts.TotalRequests/10)),
		codes:  make(map[string]int),
	}
	r.warmup(ctx)

	if opts.GlobalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.GlobalTimeout)
		defer cancel()
	}

	log.Infof("🔥 Firing %d requests for %q across %d workers", opts.TotalRequests, opts.Command, opts.Concurrency)
	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	start := time.Now()
	for i := 0; i < opts.TotalRequests; i++ {
		g.Go(func() error {
			r.call(ctx)
			r.progress()
			return nil
		})
	}
	g.Wait()
	end := time.Now()

	return Result{
		Store:        r.store,
		Attempted:    opts.TotalRequests,
		Failures:     r.store.Failures(),
		FailureCodes: r.codes,
		StartTime:    start,
		EndTime:      end,
		Duration:     end.Sub(start),
	}, nil
}

func (r *run) warmup(ctx context.Context) {
	for i := 0; i < r.opts.Warmup; i++ {
		if _, err := r.lookup(ctx); err != nil {
			log.Debugf("Warm-up call %d failed: %v", i+1, err)
		}
	}
	if r.opts.Warmup > 0 {
		log.Debugf("Warm-up done (%d calls)", r.opts.Warmup)
	}
}

func (r *run) lookup(ctx context.Context) (client.CommandRecord, error) {
	if r.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
	}
	return r.caller.GetCommand(ctx, r.opts.Command, r.opts.AuthToken)
}

func (r *run) call(ctx context.Context) {
	start := time.Now()
	rec, err := r.lookup(ctx)
	elapsed := time.Since(start)

	var code string
	switch {
	case err != nil:
		code = client.CodeOf(err).String()
	case r.opts.RequireCode && len(rec.Code) == 0:
		code = EmptyResponse
	}
	success := code == ""
	r.store.Record(sample.CallOutcome{
		Success:       success,
		ElapsedMillis: float64(elapsed) / float64(time.Millisecond),
	})
	if !success {
		r.mu.Lock()
		r.codes[code]++
		r.mu.Unlock()
	}
	if r.opts.Observer != nil {
		if success {
			code = codes.OK.String()
		}
		r.opts.Observer.Observe(success, code, elapsed)
	}
}

func (r *run) progress() {
	n := r.done.Add(1)
	if n%r.step == 0 {
		log.Infof("[%d%%] %d/%d requests completed", n*100/int64(r.opts.TotalRequests), n, r.opts.TotalRequests)
	}
}
