package blockrpc

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/iscsi"
)

// startPeerServer serves the peer protocol on an ephemeral port over a
// throwaway metadata store and Fake iSCSI configurator, returning a Client
// already configured to dial it plus the address to pass as addr.
func startPeerServer(t *testing.T) (addr string, client *Client, fake *iscsi.Fake) {
	t.Helper()

	store := blockmeta.NewStore(t.TempDir())
	fake = iscsi.NewFake("127.0.0.1", 3260)
	srv := NewServer(store, fake)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Serve(ctx, ln) }()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return host, NewClient(port, time.Second, time.Second, nil), fake
}

func TestServerVersion_ReportsProtocolVersion(t *testing.T) {
	addr, client, _ := startPeerServer(t)

	caps, result, err := client.Version(context.Background(), addr)
	require.NoError(t, err)
	assert.True(t, result.RPCSent)
	assert.Equal(t, wire.CurrentProtocolVersion, result.ProtocolVersion)
	assert.NotEmpty(t, caps)
}

func TestServerPortal_ReturnsConfiguratorPortalAndIQN(t *testing.T) {
	addr, client, fake := startPeerServer(t)

	reply, err := client.Portal(context.Background(), addr, "vol1", "block1")
	require.NoError(t, err)
	assert.Equal(t, wire.ExitOK, reply.Exit)
	assert.Equal(t, fake.Portal(), reply.Portal)
	assert.Equal(t, fake.IQN("vol1", "block1"), reply.IQN)
}

func TestServerUnknownProcedure_ReportsProcUnavail(t *testing.T) {
	addr, client, _ := startPeerServer(t)

	result, err := client.Call(context.Background(), addr, wire.Op(999), wire.VersionRequest{})
	require.NoError(t, err)
	assert.True(t, result.Exit.IsProcUnavail())
}
