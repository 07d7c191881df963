package orchestrator

import (
	"context"
	"fmt"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/capability"
	"github.com/blockd/blockd/pkg/fanout"
	"github.com/blockd/blockd/pkg/render"
)

// CreateRequest is the validated input to Create.
type CreateRequest struct {
	Volume   string
	Block    string
	Mpath    int
	Hosts    []string
	Size     int64
	AuthMode bool
	Prealloc bool
	JSON     bool
}

// Create runs the create state machine: capability negotiation, backing
// file allocation, an initial fan-out to the first mpath hosts, and a
// bounded audit/spare-retry loop that tops up short falls from the
// remaining hosts before giving up and rolling back.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) *render.Result {
	ctx, end := logOp(ctx, "create", req.Volume, req.Block)
	defer end()

	if req.Mpath > len(req.Hosts) {
		return fail(req.Volume, req.Block, newErr(ErrInternal, req.Volume, req.Block,
			fmt.Sprintf("mpath %d exceeds %d hosts", req.Mpath, len(req.Hosts))))
	}

	minCaps := capability.MinCapsFor("create", req.Mpath, req.AuthMode, req.Prealloc, req.JSON)
	if err := o.Negotiator.Verify(ctx, req.Hosts, minCaps); err != nil {
		return fail(req.Volume, req.Block, wrapNegotiationError(req.Volume, req.Block, err))
	}

	var result *render.Result
	err := o.withLock(ctx, "create", req.Volume, func(ctx context.Context) error {
		if o.Store.Access(req.Volume, req.Block) {
			return newErr(ErrAlreadyExists, req.Volume, req.Block, "block already exists")
		}

		gbid, err := genID()
		if err != nil {
			return newErr(ErrInternal, req.Volume, req.Block, err.Error())
		}
		if err := o.Store.AppendHeader(req.Volume, req.Block, "VOLUME", req.Volume); err != nil {
			return err
		}
		if err := o.Store.AppendHeader(req.Volume, req.Block, "GBID", gbid); err != nil {
			return err
		}
		if err := o.Store.AppendHeader(req.Volume, req.Block, "HA", fmt.Sprintf("%d", req.Mpath)); err != nil {
			return err
		}
		if err := o.Store.AppendEntryStatus(req.Volume, req.Block, blockmeta.EntryCreate, blockmeta.EntryInProgress); err != nil {
			return err
		}

		if err := o.Store.CreateBackingFile(req.Volume, req.Block, req.Size, req.Prealloc); err != nil {
			// ENTRYCREATE:INPROGRESS is left for later cleanup, per the
			// create contract.
			return newErr(ErrInternal, req.Volume, req.Block, "create backing file: "+err.Error())
		}

		if err := o.Store.AppendHeader(req.Volume, req.Block, "SIZE", fmt.Sprintf("%d", req.Size)); err != nil {
			return err
		}
		if err := o.Store.AppendEntryStatus(req.Volume, req.Block, blockmeta.EntryCreate, blockmeta.EntrySuccess); err != nil {
			return err
		}

		var passwd string
		if req.AuthMode {
			passwd, err = genID()
			if err != nil {
				return newErr(ErrInternal, req.Volume, req.Block, err.Error())
			}
			if err := o.Store.AppendHeader(req.Volume, req.Block, "PASSWORD", passwd); err != nil {
				return err
			}
		}

		if err := o.fanoutCreate(ctx, req, req.Hosts[0:req.Mpath]); err != nil {
			return err
		}

		outcome, err := o.auditCreate(ctx, req)
		if err != nil {
			return err
		}

		result = &render.Result{
			Name: req.Block, Volume: req.Volume, GBID: gbid, Size: req.Size, HA: req.Mpath,
			Password: passwd, SuccessfulOn: outcome.SuccessfulOn, FailedOn: outcome.FailedOn,
			RollbackOn: outcome.RollbackOn, Status: "SUCCESS",
		}
		return nil
	})
	if err != nil {
		return fail(req.Volume, req.Block, err)
	}
	return result
}

// fanoutCreate issues Create to hosts and waits for every worker.
func (o *Orchestrator) fanoutCreate(ctx context.Context, req CreateRequest, hosts []string) error {
	m, err := o.Store.ReadMeta(req.Volume, req.Block)
	if err != nil {
		return err
	}

	entries := make([]fanout.Entry, len(hosts))
	for i, h := range hosts {
		postSuccess := blockmeta.StatusConfigSuccess
		payload := wire.CreateRequest{
			Volume: req.Volume, Block: req.Block, GBID: m.GBID, Size: req.Size,
			Mpath: int32(req.Mpath), AuthMode: req.AuthMode, Passwd: m.Passwd, Prealloc: req.Prealloc,
		}
		entries[i] = fanout.Entry{
			Addr: h, Op: wire.OpCreate, Payload: payload,
			PreStatus: blockmeta.StatusConfigInProgress, PostSuccess: postSuccess, PostFail: blockmeta.StatusConfigFail,
		}
	}
	o.Fanout.Run(ctx, fanout.Plan{Volume: req.Volume, Block: req.Block, Entries: entries})
	return nil
}

type createOutcome struct {
	SuccessfulOn []string
	FailedOn     []string
	RollbackOn   []string
}

// auditCreate re-reads metadata after each fan-out round and either
// declares success, tops up the shortfall from spare hosts, or rolls
// back. The loop is bounded by len(Hosts) iterations, replacing the
// source's unbounded recursion with an explicit counter.
func (o *Orchestrator) auditCreate(ctx context.Context, req CreateRequest) (createOutcome, error) {
	for iter := 0; iter < len(req.Hosts); iter++ {
		m, err := o.Store.ReadMeta(req.Volume, req.Block)
		if err != nil {
			return createOutcome{}, err
		}

		successCnt := m.CountStatus(func(s blockmeta.Status) bool { return s.InConfigSuccessSet() })
		failCnt := m.CountStatus(func(s blockmeta.Status) bool { return s.InConfigFailSet() })

		if successCnt == req.Mpath {
			if o.Metrics != nil && iter > 0 {
				o.Metrics.RecordSpareRetry("recovered")
			}
			return createOutcome{
				SuccessfulOn: m.HostsWith(func(s blockmeta.Status) bool { return s.InConfigSuccessSet() }),
				FailedOn:     m.HostsWith(func(s blockmeta.Status) bool { return s.InConfigFailSet() }),
			}, nil
		}

		spent := successCnt + failCnt
		spare := len(req.Hosts) - spent
		need := req.Mpath - successCnt

		if spare == 0 || spare < need {
			if o.Metrics != nil {
				o.Metrics.RecordSpareRetry("exhausted")
			}
			rollbackOn := o.rollbackCreate(ctx, req, m)
			logger.WarnCtx(ctx, "create audit exhausted spare nodes",
				logger.Volume(req.Volume), logger.Block(req.Block))
			return createOutcome{}, newErr(ErrPartialFailure, req.Volume, req.Block,
				fmt.Sprintf("only %d/%d hosts succeeded, no spare capacity", successCnt, req.Mpath)).withRollback(rollbackOn)
		}

		if err := o.fanoutCreate(ctx, req, req.Hosts[spent:spent+need]); err != nil {
			return createOutcome{}, err
		}
	}
	return createOutcome{}, newErr(ErrInternal, req.Volume, req.Block, "audit loop exceeded host budget without converging")
}

// rollbackCreate deletes the block on every host that ever reached a
// CONFIG* status plus any recorded as ENTRYCREATE:INPROGRESS-only, and
// returns the set of hosts the rollback fan-out targeted.
func (o *Orchestrator) rollbackCreate(ctx context.Context, req CreateRequest, m *blockmeta.MetaInfo) []string {
	targets := m.HostsWith(func(s blockmeta.Status) bool {
		return s.InConfigSuccessSet() || s.InConfigFailSet()
	})
	if len(targets) == 0 {
		return nil
	}

	entries := make([]fanout.Entry, len(targets))
	for i, h := range targets {
		entries[i] = fanout.Entry{
			Addr: h, Op: wire.OpDelete, Payload: wire.DeleteRequest{Volume: req.Volume, Block: req.Block, Force: true},
			PreStatus: blockmeta.StatusCleanupInProgress, PostSuccess: blockmeta.StatusCleanupSuccess, PostFail: blockmeta.StatusCleanupFail,
		}
	}
	o.Fanout.Run(ctx, fanout.Plan{Volume: req.Volume, Block: req.Block, Entries: entries})
	return targets
}

func fail(volume, block string, err error) *render.Result {
	oerr := toOrchestratorError(volume, block, err)
	if oerr == nil {
		return render.Fallback(err)
	}
	if oerr.Code == ErrOpSkipped {
		return &render.Result{Volume: volume, Name: block, Status: "SKIPPED"}
	}
	r := &render.Result{Volume: volume, Name: block, Status: "FAIL", ErrCode: oerr.Code.ExitCode(), ErrMsg: oerr.Error()}
	r.RollbackOn = oerr.rollbackOn
	return r
}

// toOrchestratorError normalizes an error from any collaborator into this
// package's typed Error so the renderer always has a stable error code,
// falling back to nil (caller renders the generic canned failure) only
// when the error truly carries no domain meaning.
func toOrchestratorError(volume, block string, err error) *Error {
	if oerr, ok := err.(*Error); ok {
		return oerr
	}
	if merr, ok := err.(*blockmeta.Error); ok {
		switch merr.Code {
		case blockmeta.ErrNotFound:
			return newErr(ErrNotFound, volume, block, merr.Message)
		case blockmeta.ErrAlreadyExists:
			return newErr(ErrAlreadyExists, volume, block, merr.Message)
		case blockmeta.ErrLockBusy:
			return newErr(ErrLockBusy, volume, block, merr.Message)
		default:
			return newErr(ErrInternal, volume, block, merr.Error())
		}
	}
	return nil
}
