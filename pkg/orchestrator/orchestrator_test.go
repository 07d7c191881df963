package orchestrator

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockrpc"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/capability"
	"github.com/blockd/blockd/pkg/fanout"
)

// allCapabilities reports every capability this test suite's requests may
// require, standing in for an up-to-date peer (as opposed to a legacy one
// answering ProcUnavail).
func allCapabilities() []wire.Capability {
	names := []string{
		"create", "create_ha", "create_prealloc", "create_auth",
		"delete", "delete_force", "modify", "modify_auth", "replace", "json",
	}
	caps := make([]wire.Capability, len(names))
	for i, n := range names {
		caps[i] = wire.Capability{Name: n, Status: true}
	}
	return caps
}

// startStubPeer runs a single-connection-at-a-time peer that always
// replies with exit, for use by every orchestrator test in this package.
func startStubPeer(t *testing.T, exit wire.ExitCode) (addr string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go serveStub(ln, exit)

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, p
}

// serveStub answers every call on ln with exit, version-negotiating as a
// fully-capable peer.
func serveStub(ln net.Listener, exit wire.ExitCode) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			hdr, body, err := wire.DecodeCall(conn)
			if err != nil {
				return
			}
			if hdr.Procedure == wire.OpVersion {
				_ = wire.EncodeReply(conn, hdr.XID, wire.VersionReply{Exit: wire.ExitOK, Caps: allCapabilities()})
				return
			}
			_ = body
			_ = wire.EncodeReply(conn, hdr.XID, wire.Reply{Exit: exit, Out: "stub"})
		}()
	}
}

// startMultiStubPeer binds one stub listener per address in exits, all on
// the same port, so a single *blockrpc.Client can reach a different,
// independently-scripted peer depending on which address it dials. Used
// to simulate a fixed set of hosts where only some of them succeed.
func startMultiStubPeer(t *testing.T, exits map[string]wire.ExitCode) (port int) {
	t.Helper()
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(probe.Addr().String())
	require.NoError(t, err)
	require.NoError(t, probe.Close())

	for addr, exit := range exits {
		ln, err := net.Listen("tcp", net.JoinHostPort(addr, portStr))
		require.NoError(t, err)
		t.Cleanup(func() { ln.Close() })
		go serveStub(ln, exit)
	}

	p, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return p
}

// newTestOrchestrator builds an Orchestrator wired to a client dialing
// port, with no capability cache and no metrics.
func newTestOrchestrator(t *testing.T, port int) *Orchestrator {
	t.Helper()
	store := blockmeta.NewStore(t.TempDir())
	client := blockrpc.NewClient(port, time.Second, time.Second, nil)
	neg := capability.NewNegotiator(client, nil, nil)
	fx := fanout.NewExecutor(client, store, nil)
	return New(store, client, neg, fx, nil)
}
