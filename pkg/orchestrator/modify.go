package orchestrator

import (
	"context"

	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/capability"
	"github.com/blockd/blockd/pkg/fanout"
	"github.com/blockd/blockd/pkg/render"
)

// ModifyRequest is the validated input to Modify: toggling auth on or off.
type ModifyRequest struct {
	Volume   string
	Block    string
	AuthMode bool
	JSON     bool
}

// Modify runs the auth-toggle state machine: fan out the enforce/clear
// operation to the eligible host set, and if any host fails, toggle back
// and fan out a rollback round, recording both rounds' outcomes.
func (o *Orchestrator) Modify(ctx context.Context, req ModifyRequest) *render.Result {
	ctx, end := logOp(ctx, "modify", req.Volume, req.Block)
	defer end()

	var result *render.Result
	err := o.withLock(ctx, "modify", req.Volume, func(ctx context.Context) error {
		if !o.Store.Access(req.Volume, req.Block) {
			return newErr(ErrNotFound, req.Volume, req.Block, "block not found")
		}
		m, err := o.Store.ReadMeta(req.Volume, req.Block)
		if err != nil {
			return err
		}

		validHosts := m.HostsWith(func(s blockmeta.Status) bool { return s.DeleteEligible() })
		minCaps := capability.MinCapsFor("modify", 0, req.AuthMode, false, req.JSON)
		if err := o.Negotiator.Verify(ctx, validHosts, minCaps); err != nil {
			return wrapNegotiationError(req.Volume, req.Block, err)
		}

		if req.AuthMode {
			if m.Passwd == "" {
				passwd, err := genID()
				if err != nil {
					return newErr(ErrInternal, req.Volume, req.Block, err.Error())
				}
				if err := o.Store.AppendHeader(req.Volume, req.Block, "PASSWORD", passwd); err != nil {
					return err
				}
				m.Passwd = passwd
			}
		} else {
			if err := o.Store.AppendHeader(req.Volume, req.Block, "PASSWORD", ""); err != nil {
				return err
			}
			m.Passwd = ""
		}

		targets := modifyHostSet(m, req.AuthMode)
		succeeded, failed := o.fanoutModify(ctx, req.Volume, req.Block, targets, req.AuthMode, m.Passwd)

		var rollbackSuccess []string
		if len(failed) > 0 {
			if req.AuthMode {
				// Unwind: the enable attempt failed, so remove the
				// password it introduced.
				if err := o.Store.AppendHeader(req.Volume, req.Block, "PASSWORD", ""); err != nil {
					return err
				}
			}
			m, err = o.Store.ReadMeta(req.Volume, req.Block)
			if err != nil {
				return err
			}
			rollbackTargets := modifyHostSet(m, !req.AuthMode)
			rollbackSuccess, _ = o.fanoutModify(ctx, req.Volume, req.Block, rollbackTargets, !req.AuthMode, m.Passwd)
		}

		result = &render.Result{
			Name: req.Block, Volume: req.Volume, SuccessfulOn: succeeded, FailedOn: failed,
			RollbackOn: rollbackSuccess, Status: "SUCCESS",
		}
		if len(failed) > 0 {
			result.Status = "FAIL"
			result.ErrCode = ErrPartialFailure.ExitCode()
			result.ErrMsg = "auth toggle failed on one or more hosts"
		}
		return nil
	})
	if err != nil {
		return fail(req.Volume, req.Block, err)
	}
	return result
}

// modifyHostSet applies the enabling/disabling predicate table: hosts
// currently settled in the "off" family are eligible when enabling, hosts
// in AUTHENFORCED are eligible when disabling, and hosts mid-toggle are
// eligible either way.
func modifyHostSet(m *blockmeta.MetaInfo, enabling bool) []string {
	return m.HostsWith(func(s blockmeta.Status) bool {
		switch s {
		case blockmeta.StatusConfigSuccess, blockmeta.StatusAuthEnforceFail,
			blockmeta.StatusAuthClearEnforced, blockmeta.StatusRPSuccess,
			blockmeta.StatusRPFail, blockmeta.StatusRPInProgress:
			return enabling
		case blockmeta.StatusAuthEnforced:
			return !enabling
		case blockmeta.StatusAuthEnforcing, blockmeta.StatusAuthClearEnforcing, blockmeta.StatusAuthClearEnforceFail:
			return true
		default:
			return false
		}
	})
}

func (o *Orchestrator) fanoutModify(ctx context.Context, volume, block string, hosts []string, enabling bool, passwd string) (succeeded, failed []string) {
	if len(hosts) == 0 {
		return nil, nil
	}
	pre, success, fail := blockmeta.StatusAuthEnforcing, blockmeta.StatusAuthEnforced, blockmeta.StatusAuthEnforceFail
	if !enabling {
		pre, success, fail = blockmeta.StatusAuthClearEnforcing, blockmeta.StatusAuthClearEnforced, blockmeta.StatusAuthClearEnforceFail
	}

	entries := make([]fanout.Entry, len(hosts))
	for i, h := range hosts {
		entries[i] = fanout.Entry{
			Addr: h, Op: wire.OpModify,
			Payload:     wire.ModifyRequest{Volume: volume, Block: block, AuthMode: enabling, Passwd: passwd},
			PreStatus:   pre,
			PostSuccess: success,
			PostFail:    fail,
		}
	}
	res := o.Fanout.Run(ctx, fanout.Plan{Volume: volume, Block: block, Entries: entries})
	for _, out := range res.Succeeded {
		succeeded = append(succeeded, out.Addr)
	}
	for _, out := range res.Failed {
		failed = append(failed, out.Addr)
	}
	return succeeded, failed
}
