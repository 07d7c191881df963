package orchestrator

import (
	"context"
	"sync"

	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/capability"
	"github.com/blockd/blockd/pkg/fanout"
	"github.com/blockd/blockd/pkg/render"
)

// ReplaceRequest is the validated input to Replace: migrating a block's
// export from OldNode to NewNode while keeping its identifier stable.
type ReplaceRequest struct {
	Volume  string
	Block   string
	OldNode string
	NewNode string
	Force   bool
	JSON    bool
}

// Replace runs the three-way concurrent migration: C (create on the new
// node), R (replace-portal on every other still-valid host), and D
// (delete on the old node), each with a skip-if-already-done guard so a
// re-run of an already-successful replace is idempotent.
func (o *Orchestrator) Replace(ctx context.Context, req ReplaceRequest) *render.Result {
	ctx, end := logOp(ctx, "replace", req.Volume, req.Block)
	defer end()

	var result *render.Result
	err := o.withLock(ctx, "replace", req.Volume, func(ctx context.Context) error {
		if !o.Store.Access(req.Volume, req.Block) {
			return newErr(ErrNotFound, req.Volume, req.Block, "block not found")
		}
		m, err := o.Store.ReadMeta(req.Volume, req.Block)
		if err != nil {
			return err
		}

		oldStatus, ok := m.HostStatus(req.OldNode)
		if !ok {
			return newErr(ErrNodeNotExist, req.Volume, req.Block, req.OldNode+" not present in metadata")
		}

		newStatus, newPresent := m.HostStatus(req.NewNode)
		cSkip := newPresent && (newStatus == blockmeta.StatusConfigSuccess || newStatus == blockmeta.StatusAuthEnforced)

		remaining := remainingHosts(m, req.OldNode, req.NewNode)
		rAllDone := allRPSuccess(m, remaining)

		if cSkip && !rAllDone {
			return newErr(ErrNodeInUse, req.Volume, req.Block, req.NewNode+" already configured by another action")
		}
		if !cSkip && newPresent {
			return newErr(ErrNodeInUse, req.Volume, req.Block, req.NewNode+" already in use")
		}

		dSkip := oldStatus == blockmeta.StatusCleanupSuccess

		if cSkip && dSkip && rAllDone {
			return newErr(ErrOpSkipped, req.Volume, req.Block, "replace already completed")
		}

		minCaps := capability.MinCapsFor("replace", 0, false, false, req.JSON)
		hosts := append([]string{req.NewNode}, remaining...)
		hosts = append(hosts, req.OldNode)
		if err := o.Negotiator.Verify(ctx, hosts, minCaps); err != nil {
			return wrapNegotiationError(req.Volume, req.Block, err)
		}

		outcome := o.runReplace(ctx, req, m, cSkip, dSkip, remaining, rAllDone)

		result = &render.Result{
			Name: req.Block, Volume: req.Volume,
			SuccessfulOn: outcome.successfulOn, FailedOn: outcome.failedOn,
			ReplacePortalSkippedOn: outcome.portalSkippedOn, Status: "SUCCESS",
		}
		if len(outcome.failedOn) > 0 && !req.Force {
			result.Status = "FAIL"
			result.ErrCode = ErrPartialFailure.ExitCode()
			result.ErrMsg = "replace failed on one or more sub-operations"
		}
		return nil
	})
	if err != nil {
		return fail(req.Volume, req.Block, err)
	}
	return result
}

// remainingHosts returns every still-valid host tracked other than old and
// new. A host left over in a spent-but-failed create attempt or already
// cleaned up is not a live target for the R (replace-portal) sub-op.
func remainingHosts(m *blockmeta.MetaInfo, oldNode, newNode string) []string {
	var out []string
	for _, h := range m.List {
		if h.Addr == oldNode || h.Addr == newNode {
			continue
		}
		if !h.Status.StillValid() {
			continue
		}
		out = append(out, h.Addr)
	}
	return out
}

func allRPSuccess(m *blockmeta.MetaInfo, hosts []string) bool {
	if len(hosts) == 0 {
		return true
	}
	for _, h := range hosts {
		st, ok := m.HostStatus(h)
		if !ok || st != blockmeta.StatusRPSuccess {
			return false
		}
	}
	return true
}

type replaceOutcome struct {
	successfulOn    []string
	failedOn        []string
	portalSkippedOn []string
}

// runReplace spawns the C, R, and D sub-operations concurrently (skipping
// whichever are already satisfied) and joins all of them before returning.
func (o *Orchestrator) runReplace(ctx context.Context, req ReplaceRequest, m *blockmeta.MetaInfo, cSkip, dSkip bool, remaining []string, rAllDone bool) replaceOutcome {
	var mu sync.Mutex
	var wg sync.WaitGroup
	var acc replaceOutcome

	record := func(addr string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			acc.successfulOn = append(acc.successfulOn, addr)
		} else {
			acc.failedOn = append(acc.failedOn, addr)
		}
	}

	if cSkip {
		mu.Lock()
		acc.successfulOn = append(acc.successfulOn, req.NewNode)
		mu.Unlock()
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := o.Fanout.Run(ctx, fanout.Plan{Volume: req.Volume, Block: req.Block, Entries: []fanout.Entry{{
				Addr: req.NewNode, Op: wire.OpCreate,
				Payload: wire.CreateRequest{Volume: req.Volume, Block: req.Block, GBID: m.GBID, Size: m.Size,
					Mpath: int32(m.Mpath), AuthMode: m.Passwd != "", Passwd: m.Passwd},
				PreStatus: blockmeta.StatusConfigInProgress, PostSuccess: blockmeta.StatusConfigSuccess, PostFail: blockmeta.StatusConfigFail,
			}}})
			record(req.NewNode, len(res.Succeeded) == 1)
		}()
	}

	if rAllDone {
		mu.Lock()
		acc.portalSkippedOn = append(acc.portalSkippedOn, remaining...)
		mu.Unlock()
	} else if len(remaining) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries := make([]fanout.Entry, len(remaining))
			for i, h := range remaining {
				entries[i] = fanout.Entry{
					Addr: h, Op: wire.OpReplace,
					Payload: wire.ReplaceRequest{Volume: req.Volume, Block: req.Block, OldAddr: req.OldNode, NewAddr: req.NewNode,
						GBID: m.GBID, Size: m.Size, Mpath: int32(m.Mpath)},
					PreStatus: blockmeta.StatusRPInProgress, PostSuccess: blockmeta.StatusRPSuccess, PostFail: blockmeta.StatusRPFail,
				}
			}
			res := o.Fanout.Run(ctx, fanout.Plan{Volume: req.Volume, Block: req.Block, Entries: entries})
			for _, out := range res.Succeeded {
				record(out.Addr, true)
			}
			for _, out := range res.Failed {
				record(out.Addr, false)
			}
		}()
	}

	if dSkip {
		mu.Lock()
		acc.successfulOn = append(acc.successfulOn, req.OldNode)
		mu.Unlock()
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := o.Fanout.Run(ctx, fanout.Plan{Volume: req.Volume, Block: req.Block, Entries: []fanout.Entry{{
				Addr: req.OldNode, Op: wire.OpDelete,
				Payload:     wire.DeleteRequest{Volume: req.Volume, Block: req.Block, Force: req.Force},
				PreStatus:   blockmeta.StatusCleanupInProgress,
				PostSuccess: blockmeta.StatusCleanupSuccess,
				PostFail:    blockmeta.StatusCleanupFail,
			}}})
			ok := len(res.Succeeded) == 1
			if !ok && req.Force {
				// Under force, D failures are converted to success for
				// reporting and a CLEANUPSUCCESS line is appended post-hoc.
				_ = o.Store.AppendHostStatus(req.Volume, req.Block, req.OldNode, blockmeta.StatusCleanupSuccess)
				ok = true
			}
			record(req.OldNode, ok)
		}()
	}

	wg.Wait()
	return acc
}
