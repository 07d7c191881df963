package orchestrator

import (
	"context"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/render"
)

// Info reads a single block's metadata under the volume lock; no fan-out.
func (o *Orchestrator) Info(ctx context.Context, volume, block string) (*blockmeta.MetaInfo, error) {
	ctx, end := logOp(ctx, "info", volume, block)
	defer end()

	var m *blockmeta.MetaInfo
	err := o.withLock(ctx, "info", volume, func(ctx context.Context) error {
		if !o.Store.Access(volume, block) {
			return newErr(ErrNotFound, volume, block, "block not found")
		}
		var err error
		m, err = o.Store.ReadMeta(volume, block)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Portals queries the first still-valid host for the portal address and
// IQN a client would use to attach m's block, trying the remaining
// still-valid hosts in order on failure. It returns empty values rather
// than an error if none can be reached, since a portal fetch failure
// should not turn a successful Info into a failed one.
func (o *Orchestrator) Portals(ctx context.Context, volume string, m *blockmeta.MetaInfo) ([]string, string) {
	for _, h := range m.List {
		if !h.Status.StillValid() {
			continue
		}
		reply, err := o.Client.Portal(ctx, h.Addr, volume, m.Block)
		if err != nil {
			logger.WarnCtx(ctx, "portal fetch failed", logger.Addr(h.Addr), logger.Err(err))
			continue
		}
		return []string{reply.Portal}, reply.IQN
	}
	return nil, ""
}

// InfoResult renders an Info outcome, including the per-host current
// status and, when the caller supplies them, the portal(s) and IQN a
// client would use to attach the block.
func InfoResult(m *blockmeta.MetaInfo, portals []string, iqn string) *render.Result {
	statuses := make(map[string]string, len(m.List))
	for _, h := range m.List {
		statuses[h.Addr] = string(h.Status)
	}
	return &render.Result{
		Name: m.Block, Volume: m.Volume, GBID: m.GBID, Size: m.Size, HA: m.Mpath,
		Password: m.Passwd, Portals: portals, IQN: iqn, HostStatuses: statuses, Status: "SUCCESS",
	}
}
