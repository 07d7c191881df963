package orchestrator

import (
	"context"

	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/render"
)

// List reads every block name in a volume under the metadata lock; no
// fan-out is involved. Unless all is set, blocks still in
// ENTRYCREATE:INPROGRESS are excluded, matching the original's filtering
// of pending/trash entries out of a default listing.
func (o *Orchestrator) List(ctx context.Context, volume string, all bool) ([]string, error) {
	ctx, end := logOp(ctx, "list", volume, "")
	defer end()

	var blocks []string
	err := o.withLock(ctx, "list", volume, func(ctx context.Context) error {
		names, err := o.Store.ListBlocks(volume)
		if err != nil {
			return err
		}
		if all {
			blocks = names
			return nil
		}
		for _, name := range names {
			m, err := o.Store.ReadMeta(volume, name)
			if err != nil {
				return err
			}
			if m.EntryPhase == blockmeta.EntryCreate && m.EntryOutcome == blockmeta.EntryInProgress {
				continue
			}
			blocks = append(blocks, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// ListResult renders a List outcome for the response renderer.
func ListResult(volume string, blocks []string) *render.Result {
	return &render.Result{Volume: volume, Blocks: blocks, Status: "SUCCESS"}
}
