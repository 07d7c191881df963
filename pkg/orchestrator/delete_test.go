package orchestrator

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

func TestDelete_NotFound(t *testing.T) {
	_, port := startStubPeer(t, wire.ExitOK)
	o := newTestOrchestrator(t, port)

	result := o.Delete(context.Background(), DeleteRequest{Volume: "v1", Block: "missing"})
	assert.Equal(t, "FAIL", result.Status)
	assert.Equal(t, ErrNotFound.ExitCode(), result.ErrCode)
}

func TestDelete_SuccessAfterCreate(t *testing.T) {
	addr, port := startStubPeer(t, wire.ExitOK)
	o := newTestOrchestrator(t, port)

	created := o.Create(context.Background(), CreateRequest{
		Volume: "v1", Block: "b1", Mpath: 1, Hosts: []string{addr}, Size: 4096,
	})
	require.Equal(t, "SUCCESS", created.Status)

	result := o.Delete(context.Background(), DeleteRequest{Volume: "v1", Block: "b1", Unlink: true})
	require.Equal(t, "SUCCESS", result.Status)
	assert.False(t, o.Store.Access("v1", "b1"))
}

func TestDelete_NonForceFailsWhenAHostIsDown(t *testing.T) {
	h1, port := startStubPeer(t, wire.ExitOK)

	h2 := "127.0.0.31"
	ln2, err := net.Listen("tcp", net.JoinHostPort(h2, strconv.Itoa(port)))
	require.NoError(t, err)
	go serveStub(ln2, wire.ExitOK)

	o := newTestOrchestrator(t, port)

	created := o.Create(context.Background(), CreateRequest{
		Volume: "v1", Block: "b1", Mpath: 2, Hosts: []string{h1, h2}, Size: 4096,
	})
	require.Equal(t, "SUCCESS", created.Status)

	// h2 goes down before the delete's reachability pre-probe runs.
	require.NoError(t, ln2.Close())

	result := o.Delete(context.Background(), DeleteRequest{Volume: "v1", Block: "b1"})
	require.Equal(t, "FAIL", result.Status)
	assert.Equal(t, ErrNodesDown.ExitCode(), result.ErrCode)
	assert.True(t, o.Store.Access("v1", "b1"), "a non-force delete blocked by a down host must not remove the block")
}
