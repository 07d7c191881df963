package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

func TestModify_EnableAuth(t *testing.T) {
	addr, port := startStubPeer(t, wire.ExitOK)
	o := newTestOrchestrator(t, port)

	created := o.Create(context.Background(), CreateRequest{
		Volume: "v1", Block: "b1", Mpath: 1, Hosts: []string{addr}, Size: 4096,
	})
	require.Equal(t, "SUCCESS", created.Status)

	result := o.Modify(context.Background(), ModifyRequest{Volume: "v1", Block: "b1", AuthMode: true})
	require.Equal(t, "SUCCESS", result.Status)
	assert.Contains(t, result.SuccessfulOn, addr)

	m, err := o.Store.ReadMeta("v1", "b1")
	require.NoError(t, err)
	st, ok := m.HostStatus(addr)
	require.True(t, ok)
	assert.EqualValues(t, "AUTHENFORCED", st)
}

func TestModify_EnableThenDisableClearsPassword(t *testing.T) {
	addr, port := startStubPeer(t, wire.ExitOK)
	o := newTestOrchestrator(t, port)

	created := o.Create(context.Background(), CreateRequest{
		Volume: "v1", Block: "b1", Mpath: 1, Hosts: []string{addr}, Size: 4096,
	})
	require.Equal(t, "SUCCESS", created.Status)

	enabled := o.Modify(context.Background(), ModifyRequest{Volume: "v1", Block: "b1", AuthMode: true})
	require.Equal(t, "SUCCESS", enabled.Status)

	m, err := o.Store.ReadMeta("v1", "b1")
	require.NoError(t, err)
	assert.NotEmpty(t, m.Passwd)
	st, ok := m.HostStatus(addr)
	require.True(t, ok)
	assert.EqualValues(t, "AUTHENFORCED", st)

	disabled := o.Modify(context.Background(), ModifyRequest{Volume: "v1", Block: "b1", AuthMode: false})
	require.Equal(t, "SUCCESS", disabled.Status)
	assert.Contains(t, disabled.SuccessfulOn, addr)

	m, err = o.Store.ReadMeta("v1", "b1")
	require.NoError(t, err)
	assert.Empty(t, m.Passwd, "disabling auth must clear PASSWORD to a blank last-write-wins line")
	st, ok = m.HostStatus(addr)
	require.True(t, ok)
	assert.EqualValues(t, "AUTHCLEARENFORCED", st)
}

func TestModify_NotFound(t *testing.T) {
	_, port := startStubPeer(t, wire.ExitOK)
	o := newTestOrchestrator(t, port)

	result := o.Modify(context.Background(), ModifyRequest{Volume: "v1", Block: "missing", AuthMode: true})
	assert.Equal(t, "FAIL", result.Status)
	assert.Equal(t, ErrNotFound.ExitCode(), result.ErrCode)
}
