package fanout

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockrpc"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

// startStubPeer runs a minimal peer that always replies with exit.
func startStubPeer(t *testing.T, exit wire.ExitCode) (addr string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				hdr, _, err := wire.DecodeCall(conn)
				if err != nil {
					return
				}
				_ = wire.EncodeReply(conn, hdr.XID, wire.Reply{Exit: exit, Out: "stub"})
			}()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, p
}

func TestExecutor_Run_RecordsSuccessStatus(t *testing.T) {
	okAddr, okPort := startStubPeer(t, wire.ExitOK)

	store := blockmeta.NewStore(t.TempDir())
	_, err := store.OpenVolume("v1")
	require.NoError(t, err)

	clientOK := blockrpc.NewClient(okPort, time.Second, time.Second, nil)
	exec := NewExecutor(clientOK, store, nil)

	plan := Plan{
		Volume: "v1",
		Block:  "b1",
		Entries: []Entry{
			{Addr: okAddr, Op: wire.OpCreate, Payload: wire.CreateRequest{Volume: "v1", Block: "b1"},
				PreStatus: blockmeta.StatusConfigInProgress, PostSuccess: blockmeta.StatusConfigSuccess, PostFail: blockmeta.StatusConfigFail},
		},
	}

	result := exec.Run(context.Background(), plan)
	require.Len(t, result.Attempted, 1)
	assert.Len(t, result.Succeeded, 1)
	assert.Empty(t, result.Failed)

	m, err := store.ReadMeta("v1", "b1")
	require.NoError(t, err)
	st, ok := m.HostStatus(okAddr)
	require.True(t, ok)
	assert.Equal(t, blockmeta.StatusConfigSuccess, st)
}

func TestExecutor_Run_RecordsFailureStatus(t *testing.T) {
	failAddr, failPort := startStubPeer(t, wire.ExitCode(1))

	store := blockmeta.NewStore(t.TempDir())
	_, err := store.OpenVolume("v1")
	require.NoError(t, err)

	client := blockrpc.NewClient(failPort, time.Second, time.Second, nil)
	exec := NewExecutor(client, store, nil)

	plan := Plan{
		Volume: "v1",
		Block:  "b1",
		Entries: []Entry{
			{Addr: failAddr, Op: wire.OpCreate, Payload: wire.CreateRequest{Volume: "v1", Block: "b1"},
				PreStatus: blockmeta.StatusConfigInProgress, PostSuccess: blockmeta.StatusConfigSuccess, PostFail: blockmeta.StatusConfigFail},
		},
	}

	result := exec.Run(context.Background(), plan)
	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)

	m, err := store.ReadMeta("v1", "b1")
	require.NoError(t, err)
	st, ok := m.HostStatus(failAddr)
	require.True(t, ok)
	assert.Equal(t, blockmeta.StatusConfigFail, st)
}

func TestExecutor_Run_TransportFailureIsUnsucceeded(t *testing.T) {
	store := blockmeta.NewStore(t.TempDir())
	_, err := store.OpenVolume("v1")
	require.NoError(t, err)

	// No listener on this port: connection refused.
	client := blockrpc.NewClient(1, 50*time.Millisecond, 50*time.Millisecond, nil)
	exec := NewExecutor(client, store, nil)

	plan := Plan{
		Volume: "v1",
		Block:  "b1",
		Entries: []Entry{
			{Addr: "127.0.0.1", Op: wire.OpCreate, Payload: wire.CreateRequest{Volume: "v1", Block: "b1"},
				PostFail: blockmeta.StatusConfigFail},
		},
	}

	result := exec.Run(context.Background(), plan)
	require.Len(t, result.Failed, 1)
	assert.False(t, result.Failed[0].RPCSent)
	assert.Error(t, result.Failed[0].Err)
}
