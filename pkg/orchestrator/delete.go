package orchestrator

import (
	"context"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/capability"
	"github.com/blockd/blockd/pkg/fanout"
	"github.com/blockd/blockd/pkg/render"
)

// DeleteRequest is the validated input to Delete.
type DeleteRequest struct {
	Volume string
	Block  string
	Unlink bool
	Force  bool
	JSON   bool
}

// Delete runs the delete state machine: an optional reachability
// pre-probe, a cleanup fan-out across every host with cleanup-eligible
// status, and the final entry-level removal once every host has settled.
func (o *Orchestrator) Delete(ctx context.Context, req DeleteRequest) *render.Result {
	ctx, end := logOp(ctx, "delete", req.Volume, req.Block)
	defer end()

	var result *render.Result
	err := o.withLock(ctx, "delete", req.Volume, func(ctx context.Context) error {
		if !o.Store.Access(req.Volume, req.Block) {
			return newErr(ErrNotFound, req.Volume, req.Block, "block not found")
		}
		m, err := o.Store.ReadMeta(req.Volume, req.Block)
		if err != nil {
			return err
		}

		validHosts := m.HostsWith(func(s blockmeta.Status) bool { return s.DeleteEligible() })

		if !req.Force {
			reachable, unreachable := o.probeReachable(ctx, validHosts)
			if len(unreachable) > 0 {
				e := newErr(ErrNodesDown, req.Volume, req.Block, "one or more hosts unreachable")
				e.Reachable = reachable
				e.Unreachable = unreachable
				return e
			}
		}

		minCaps := capability.MinCapsFor("delete", 0, false, false, req.JSON)
		if req.Force {
			minCaps["delete_force"] = true
		}
		if err := o.Negotiator.Verify(ctx, validHosts, minCaps); err != nil {
			return wrapNegotiationError(req.Volume, req.Block, err)
		}

		if len(validHosts) > 0 {
			entries := make([]fanout.Entry, len(validHosts))
			for i, h := range validHosts {
				entries[i] = fanout.Entry{
					Addr: h, Op: wire.OpDelete, Payload: wire.DeleteRequest{Volume: req.Volume, Block: req.Block, Force: req.Force},
					PreStatus: blockmeta.StatusCleanupInProgress, PostSuccess: blockmeta.StatusCleanupSuccess, PostFail: blockmeta.StatusCleanupFail,
				}
			}
			o.Fanout.Run(ctx, fanout.Plan{Volume: req.Volume, Block: req.Block, Entries: entries})
		}

		m, err = o.Store.ReadMeta(req.Volume, req.Block)
		if err != nil {
			return err
		}

		settled := req.Force || allSettled(m)
		if !settled {
			return newErr(ErrPartialFailure, req.Volume, req.Block, "not all hosts reached a cleanup-complete status")
		}

		if err := o.Store.AppendEntryStatus(req.Volume, req.Block, blockmeta.EntryDelete, blockmeta.EntryInProgress); err != nil {
			return err
		}
		if req.Unlink {
			if err := o.Store.RemoveBackingFile(req.Volume, req.Block); err != nil {
				_ = o.Store.AppendEntryStatus(req.Volume, req.Block, blockmeta.EntryDelete, blockmeta.EntryFail)
				return newErr(ErrInternal, req.Volume, req.Block, "unlink backing file: "+err.Error())
			}
		}
		if err := o.Store.AppendEntryStatus(req.Volume, req.Block, blockmeta.EntryDelete, blockmeta.EntrySuccess); err != nil {
			return err
		}

		if o.Archiver != nil {
			raw, err := o.Store.ReadRawLog(req.Volume, req.Block)
			if err != nil {
				return err
			}
			if err := o.Archiver.Archive(ctx, req.Volume, req.Block, m.GBID, raw); err != nil {
				logger.WarnCtx(ctx, "archive metadata log failed, deleting anyway",
					logger.Volume(req.Volume), logger.Block(req.Block), logger.Err(err))
			}
		}

		if err := o.Store.DeleteMeta(req.Volume, req.Block); err != nil {
			return err
		}

		result = &render.Result{Name: req.Block, Volume: req.Volume, SuccessfulOn: validHosts, Status: "SUCCESS"}
		return nil
	})
	if err != nil {
		return fail(req.Volume, req.Block, err)
	}
	return result
}

// allSettled reports whether every host currently tracked is in
// CONFIGINPROGRESS (never reached by this delete) or CLEANUPSUCCESS.
func allSettled(m *blockmeta.MetaInfo) bool {
	for _, h := range m.List {
		if h.Status != blockmeta.StatusConfigInProgress && h.Status != blockmeta.StatusCleanupSuccess {
			return false
		}
	}
	return true
}
