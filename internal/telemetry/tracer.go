package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for orchestrator and peer RPC spans.
const (
	AttrVolume    = "block.volume"
	AttrBlockName = "block.name"
	AttrGBID      = "block.gbid"
	AttrMpath     = "block.mpath"
	AttrAuthMode  = "block.auth_mode"
	AttrHostAddr  = "peer.address"
	AttrRPCOp     = "rpc.op"
	AttrRPCXID    = "rpc.xid"
	AttrExitCode  = "rpc.exit_code"
)

// Span name prefixes.
const (
	SpanOrchestrator = "orchestrator."
	SpanPeerRPC      = "peer_rpc."
)

// Volume returns an attribute for the volume a command targets.
func Volume(name string) attribute.KeyValue {
	return attribute.String(AttrVolume, name)
}

// BlockName returns an attribute for the block device name a command targets.
func BlockName(name string) attribute.KeyValue {
	return attribute.String(AttrBlockName, name)
}

// GBID returns an attribute for a block's globally unique identifier.
func GBID(id string) attribute.KeyValue {
	return attribute.String(AttrGBID, id)
}

// Mpath returns an attribute for the multipath host count requested.
func Mpath(n int) attribute.KeyValue {
	return attribute.Int(AttrMpath, n)
}

// AuthModeAttr returns an attribute for whether CHAP auth is requested.
func AuthModeAttr(enabled bool) attribute.KeyValue {
	return attribute.Bool(AttrAuthMode, enabled)
}

// HostAddr returns an attribute for the peer host address an RPC targets.
func HostAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrHostAddr, addr)
}

// RPCOp returns an attribute for the peer procedure name.
func RPCOp(op string) attribute.KeyValue {
	return attribute.String(AttrRPCOp, op)
}

// RPCXID returns an attribute for the peer RPC transaction ID.
func RPCXID(xid uint32) attribute.KeyValue {
	return attribute.Int64(AttrRPCXID, int64(xid))
}

// ExitCode returns an attribute for a peer's reported exit code.
func ExitCode(code int) attribute.KeyValue {
	return attribute.Int(AttrExitCode, code)
}

// StartCommandSpan starts a span for one orchestrator command (create,
// delete, modify, replace, list, info), tagged with the volume and block
// it targets.
func StartCommandSpan(ctx context.Context, op, volume, block string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Volume(volume), BlockName(block)}, attrs...)
	return StartSpan(ctx, SpanOrchestrator+op, trace.WithAttributes(allAttrs...))
}

// StartPeerSpan starts a span for one outbound peer RPC call.
func StartPeerSpan(ctx context.Context, op, addr string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{RPCOp(op), HostAddr(addr)}, attrs...)
	return StartSpan(ctx, SpanPeerRPC+op, trace.WithAttributes(allAttrs...))
}
