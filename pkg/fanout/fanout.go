// Package fanout implements the fan-out executor: it spawns one worker
// per peer, joins all of them, and aggregates per-host outcomes into
// attempted (every entry), succeeded and failed sets. It has no skipped
// set: an entry in a plan is always called.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockrpc"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/metrics"
)

// Entry is one peer's step within a plan: the RPC to issue and the
// status-log lines to append before and after it.
type Entry struct {
	Addr        string
	Op          wire.Op
	Payload     any
	PreStatus   blockmeta.Status
	PostSuccess blockmeta.Status
	PostFail    blockmeta.Status
}

// Plan is a fully-resolved fan-out over a single block's peer list.
type Plan struct {
	Volume  string
	Block   string
	Entries []Entry
}

// Outcome is one worker's completion record.
type Outcome struct {
	Addr    string
	Exit    wire.ExitCode
	Out     string
	RPCSent bool
	Err     error
}

// Succeeded reports whether the peer's RPC reached the wire and returned
// a zero exit code.
func (o Outcome) Succeeded() bool { return o.RPCSent && o.Err == nil && o.Exit == wire.ExitOK }

// Result aggregates every worker's outcome into the three buckets the
// orchestrators reason about.
type Result struct {
	Attempted []Outcome // every entry in the plan
	Succeeded []Outcome
	Failed    []Outcome
}

// Executor runs fan-out plans against a metadata store and an RPC client.
type Executor struct {
	client  *blockrpc.Client
	store   *blockmeta.Store
	metrics *metrics.FanoutMetrics
	// appendMu serializes metadata log appends across concurrent workers;
	// the volume's exclusive lock is already held by the caller for the
	// whole command, this only protects interleaving within Run.
	appendMu sync.Mutex
}

// NewExecutor builds an Executor.
func NewExecutor(client *blockrpc.Client, store *blockmeta.Store, m *metrics.FanoutMetrics) *Executor {
	return &Executor{client: client, store: store, metrics: m}
}

// Run executes every entry in plan concurrently and waits for all of them.
func (e *Executor) Run(ctx context.Context, plan Plan) Result {
	if e.metrics != nil {
		e.metrics.ObservePlanSize(len(plan.Entries))
	}

	outcomes := make([]Outcome, len(plan.Entries))
	var wg sync.WaitGroup
	for i, entry := range plan.Entries {
		wg.Add(1)
		go func(i int, entry Entry) {
			defer wg.Done()
			outcomes[i] = e.runOne(ctx, plan.Volume, plan.Block, entry)
		}(i, entry)
	}
	wg.Wait()

	result := Result{Attempted: outcomes}
	for _, o := range outcomes {
		if o.Succeeded() {
			result.Succeeded = append(result.Succeeded, o)
		} else {
			result.Failed = append(result.Failed, o)
		}
	}
	return result
}

func (e *Executor) runOne(ctx context.Context, volume, block string, entry Entry) Outcome {
	start := time.Now()
	if entry.PreStatus != "" {
		e.appendStatus(volume, block, entry.Addr, entry.PreStatus)
	}

	res, err := e.client.Call(ctx, entry.Addr, entry.Op, entry.Payload)
	outcome := Outcome{Addr: entry.Addr, Exit: res.Exit, Out: res.Out, RPCSent: res.RPCSent, Err: err}

	post := entry.PostFail
	bucket := "failed"
	if outcome.Succeeded() {
		post = entry.PostSuccess
		bucket = "succeeded"
	}
	if post != "" {
		e.appendStatus(volume, block, entry.Addr, post)
	}

	if e.metrics != nil {
		e.metrics.RecordWorker(entry.Op.String(), bucket)
		e.metrics.ObserveWorkerDuration(entry.Op.String(), time.Since(start).Seconds())
	}
	logger.InfoCtx(ctx, "fanout worker complete",
		logger.Addr(entry.Addr), logger.Op(entry.Op.String()), logger.Outcome(bucket), logger.ExitCode(int(res.Exit)))
	return outcome
}

func (e *Executor) appendStatus(volume, block, addr string, status blockmeta.Status) {
	e.appendMu.Lock()
	defer e.appendMu.Unlock()
	if err := e.store.AppendHostStatus(volume, block, addr, status); err != nil {
		logger.Error("fanout status append failed",
			logger.Volume(volume), logger.Block(block), logger.Addr(addr), logger.Err(err))
	}
}
