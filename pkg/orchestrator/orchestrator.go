// Package orchestrator implements the command-level state machines that
// drive the metadata store, capability negotiator, and fan-out executor
// through create, delete, modify, replace, list, and info.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/internal/telemetry"
	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockmeta/archive"
	"github.com/blockd/blockd/pkg/blockrpc"
	"github.com/blockd/blockd/pkg/capability"
	"github.com/blockd/blockd/pkg/fanout"
	"github.com/blockd/blockd/pkg/metrics"
)

// Orchestrator holds every collaborator a command needs: the metadata
// store, the peer RPC client, the capability negotiator, and the fan-out
// executor. One Orchestrator is shared by every command in a process.
type Orchestrator struct {
	Store      *blockmeta.Store
	Client     *blockrpc.Client
	Negotiator *capability.Negotiator
	Fanout     *fanout.Executor
	Metrics    *metrics.OrchestratorMetrics

	// Archiver uploads a deleted block's final metadata log to S3. Nil
	// disables archival entirely.
	Archiver *archive.Archiver

	// ProbeTimeout bounds the pre-probe TCP connect used by delete's
	// reachability check.
	ProbeTimeout time.Duration
}

// New builds an Orchestrator from its collaborators.
func New(store *blockmeta.Store, client *blockrpc.Client, neg *capability.Negotiator, fx *fanout.Executor, m *metrics.OrchestratorMetrics) *Orchestrator {
	return &Orchestrator{Store: store, Client: client, Negotiator: neg, Fanout: fx, Metrics: m, ProbeTimeout: 3 * time.Second}
}

// genID returns a fresh 128-bit identifier as 32 lowercase hex characters,
// used for both GBID and the auth password.
func genID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// withLock acquires the volume's metadata lock, runs fn, and always
// releases it, recording lock-wait and command-duration metrics around
// the call under op's name.
func (o *Orchestrator) withLock(ctx context.Context, op, volume string, fn func(ctx context.Context) error) error {
	start := time.Now()
	tok, err := o.Store.Lock(ctx, volume)
	if o.Metrics != nil {
		o.Metrics.ObserveLockWait(op, time.Since(start).Seconds())
	}
	if err != nil {
		return err
	}
	defer tok.Unlock()

	cmdStart := time.Now()
	err = fn(ctx)
	if o.Metrics != nil {
		status := "success"
		if err != nil {
			status = "fail"
		}
		o.Metrics.RecordCommand(op, status)
		o.Metrics.ObserveCommandDuration(op, time.Since(cmdStart).Seconds())
	}
	return err
}

// probeReachable TCP-dials every host in hosts and partitions them into
// reachable and unreachable sets; used by delete's non-force pre-probe.
func (o *Orchestrator) probeReachable(ctx context.Context, hosts []string) (reachable, unreachable []string) {
	port := o.Client.Port()
	for _, h := range hosts {
		dialCtx, cancel := context.WithTimeout(ctx, o.ProbeTimeout)
		conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", net.JoinHostPort(h, fmt.Sprintf("%d", port)))
		cancel()
		if err != nil {
			unreachable = append(unreachable, h)
			continue
		}
		_ = conn.Close()
		reachable = append(reachable, h)
	}
	return reachable, unreachable
}

// logOp logs and traces the start of one orchestrator command, returning
// the span-carrying context and a func the caller must defer to end it.
func logOp(ctx context.Context, op, volume, block string) (context.Context, func()) {
	logger.InfoCtx(ctx, "orchestrator command start", logger.Op(op), logger.Volume(volume), logger.Block(block))
	ctx, span := telemetry.StartCommandSpan(ctx, op, volume, block)
	return ctx, span.End
}

// wrapNegotiationError converts the capability package's typed errors into
// this package's Error so the renderer sees a consistent error taxonomy.
func wrapNegotiationError(volume, block string, err error) error {
	if err == nil {
		return nil
	}
	var missing *capability.MissingError
	var unreachable *capability.UnreachableError
	var skew *capability.ProtocolSkewError
	switch {
	case errors.As(err, &missing):
		return newErr(ErrCapMissing, volume, block, fmt.Sprintf("%s missing capability %q", missing.Addr, missing.Cap))
	case errors.As(err, &skew):
		return newErr(ErrProtocolSkew, volume, block, skew.Error())
	case errors.As(err, &unreachable):
		return newErr(ErrPeerUnreachable, volume, block, fmt.Sprintf("%s unreachable: %v", unreachable.Addr, unreachable.Err))
	default:
		return newErr(ErrInternal, volume, block, err.Error())
	}
}
