// Package blockrpc implements the peer RPC client and peer-side server:
// a single typed unary call to one peer for one of
// {create, delete, modify, replace, version, portal}.
package blockrpc

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/internal/telemetry"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/metrics"
)

// Client issues peer RPC calls to the six well-known procedures.
type Client struct {
	port        int
	dialTimeout time.Duration
	callTimeout time.Duration
	metrics     *metrics.RPCMetrics
}

// Port returns the well-known peer port this client dials.
func (c *Client) Port() int { return c.port }

// NewClient creates a client that dials peers on port and bounds each call
// by dialTimeout (connect) and callTimeout (the full round trip).
func NewClient(port int, dialTimeout, callTimeout time.Duration, m *metrics.RPCMetrics) *Client {
	return &Client{port: port, dialTimeout: dialTimeout, callTimeout: callTimeout, metrics: m}
}

// Result is the outcome of a single Call. ProtocolVersion is populated
// only by Version and is zero on every other call.
type Result struct {
	Exit            wire.ExitCode
	Out             string
	ProtocolVersion int32
	RPCSent         bool // false only on connect/socket failure; true otherwise
}

// Call issues op against addr with req as the request body, returning the
// remote exit code and payload. On transport failure (dial or socket
// error) RPCSent is false and err is non-nil; callers must treat that
// distinctly from a remote exit code, per the RPC client contract.
func (c *Client) Call(ctx context.Context, addr string, op wire.Op, req any) (Result, error) {
	ctx, span := telemetry.StartPeerSpan(ctx, op.String(), addr)
	defer span.End()

	start := time.Now()
	conn, err := c.dial(ctx, addr)
	if err != nil {
		c.record(op, "transport_error", start)
		return Result{RPCSent: false}, fmt.Errorf("dial peer %s: %w", addr, err)
	}
	defer conn.Close()

	xid := rand.Uint32()
	if err := wire.EncodeCall(conn, xid, op, req); err != nil {
		c.record(op, "transport_error", start)
		return Result{RPCSent: false}, fmt.Errorf("encode call to %s: %w", addr, err)
	}

	var reply wire.Reply
	if _, err := wire.DecodeReply(conn, &reply); err != nil {
		c.record(op, "transport_error", start)
		return Result{RPCSent: false}, fmt.Errorf("decode reply from %s: %w", addr, err)
	}

	result := "ok"
	switch {
	case reply.Exit.IsProcUnavail():
		result = "proc_unavail"
	case reply.Exit != wire.ExitOK:
		result = "remote_error"
	}
	c.record(op, result, start)
	telemetry.SetAttributes(ctx, telemetry.ExitCode(int(reply.Exit)))

	logger.DebugCtx(ctx, "peer rpc call complete", logger.Op(op.String()), logger.Addr(addr), logger.ExitCode(int(reply.Exit)))
	return Result{Exit: reply.Exit, Out: reply.Out, RPCSent: true}, nil
}

// Version negotiates capabilities with addr. A ProcUnavail response is
// returned as a successful Result (RPCSent=true) carrying no caps; the
// caller substitutes the legacy capability set, per the negotiation
// algorithm in pkg/capability.
func (c *Client) Version(ctx context.Context, addr string) ([]wire.Capability, Result, error) {
	ctx, span := telemetry.StartPeerSpan(ctx, wire.OpVersion.String(), addr)
	defer span.End()

	start := time.Now()
	conn, err := c.dial(ctx, addr)
	if err != nil {
		c.record(wire.OpVersion, "transport_error", start)
		return nil, Result{RPCSent: false}, fmt.Errorf("dial peer %s: %w", addr, err)
	}
	defer conn.Close()

	xid := rand.Uint32()
	if err := wire.EncodeCall(conn, xid, wire.OpVersion, wire.VersionRequest{}); err != nil {
		c.record(wire.OpVersion, "transport_error", start)
		return nil, Result{RPCSent: false}, fmt.Errorf("encode version call to %s: %w", addr, err)
	}

	var reply wire.VersionReply
	if _, err := wire.DecodeReply(conn, &reply); err != nil {
		c.record(wire.OpVersion, "transport_error", start)
		return nil, Result{RPCSent: false}, fmt.Errorf("decode version reply from %s: %w", addr, err)
	}

	result := "ok"
	if reply.Exit.IsProcUnavail() {
		result = "proc_unavail"
	}
	c.record(wire.OpVersion, result, start)
	return reply.Caps, Result{Exit: reply.Exit, ProtocolVersion: reply.ProtocolVersion, RPCSent: true}, nil
}

// Portal asks addr for the portal address and IQN a client would use to
// attach to volume/block.
func (c *Client) Portal(ctx context.Context, addr, volume, block string) (wire.PortalReply, error) {
	ctx, span := telemetry.StartPeerSpan(ctx, wire.OpPortal.String(), addr, telemetry.Volume(volume), telemetry.BlockName(block))
	defer span.End()

	conn, err := c.dial(ctx, addr)
	if err != nil {
		return wire.PortalReply{}, fmt.Errorf("dial peer %s: %w", addr, err)
	}
	defer conn.Close()

	xid := rand.Uint32()
	if err := wire.EncodeCall(conn, xid, wire.OpPortal, wire.PortalRequest{Volume: volume, Block: block}); err != nil {
		return wire.PortalReply{}, fmt.Errorf("encode portal call to %s: %w", addr, err)
	}

	var reply wire.PortalReply
	if _, err := wire.DecodeReply(conn, &reply); err != nil {
		return wire.PortalReply{}, fmt.Errorf("decode portal reply from %s: %w", addr, err)
	}
	return reply, nil
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(addr, strconv.Itoa(c.port)))
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctxDeadline(ctx, c.callTimeout); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func ctxDeadline(ctx context.Context, fallback time.Duration) (time.Time, bool) {
	if d, ok := ctx.Deadline(); ok {
		return d, true
	}
	return time.Now().Add(fallback), true
}

func (c *Client) record(op wire.Op, result string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCall(op.String(), result)
	c.metrics.ObserveCallDuration(op.String(), time.Since(start).Seconds())
}
