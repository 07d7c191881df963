package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

func TestCreate_SingleHostSuccess(t *testing.T) {
	addr, port := startStubPeer(t, wire.ExitOK)
	o := newTestOrchestrator(t, port)

	result := o.Create(context.Background(), CreateRequest{
		Volume: "v1", Block: "b1", Mpath: 1, Hosts: []string{addr}, Size: 4096,
	})

	require.Equal(t, "SUCCESS", result.Status)
	assert.Equal(t, "v1", result.Volume)
	assert.NotEmpty(t, result.GBID)
	assert.Equal(t, int64(4096), result.Size)
	assert.Contains(t, result.SuccessfulOn, addr)
}

func TestCreate_AlreadyExists(t *testing.T) {
	addr, port := startStubPeer(t, wire.ExitOK)
	o := newTestOrchestrator(t, port)

	req := CreateRequest{Volume: "v1", Block: "b1", Mpath: 1, Hosts: []string{addr}, Size: 4096}
	first := o.Create(context.Background(), req)
	require.Equal(t, "SUCCESS", first.Status)

	second := o.Create(context.Background(), req)
	assert.Equal(t, "FAIL", second.Status)
	assert.Equal(t, ErrAlreadyExists.ExitCode(), second.ErrCode)
}

func TestCreate_MpathExceedsHosts(t *testing.T) {
	o := newTestOrchestrator(t, 1)
	result := o.Create(context.Background(), CreateRequest{
		Volume: "v1", Block: "b1", Mpath: 2, Hosts: []string{"only-one"}, Size: 4096,
	})
	assert.Equal(t, "FAIL", result.Status)
}

func TestCreate_SpareRetryRecoversFromOneFailure(t *testing.T) {
	port := startMultiStubPeer(t, map[string]wire.ExitCode{
		"127.0.0.11": wire.ExitCode(1),
		"127.0.0.12": wire.ExitOK,
		"127.0.0.13": wire.ExitOK,
	})
	o := newTestOrchestrator(t, port)

	result := o.Create(context.Background(), CreateRequest{
		Volume: "v1", Block: "b1", Mpath: 2,
		Hosts: []string{"127.0.0.11", "127.0.0.12", "127.0.0.13"}, Size: 4096,
	})

	require.Equal(t, "SUCCESS", result.Status)
	assert.Len(t, result.SuccessfulOn, 2)
	assert.Contains(t, result.SuccessfulOn, "127.0.0.12")
	assert.Contains(t, result.SuccessfulOn, "127.0.0.13")
	assert.Contains(t, result.FailedOn, "127.0.0.11")
}

func TestCreate_RollsBackWhenSpareCapacityExhausted(t *testing.T) {
	port := startMultiStubPeer(t, map[string]wire.ExitCode{
		"127.0.0.21": wire.ExitCode(1),
		"127.0.0.22": wire.ExitOK,
	})
	o := newTestOrchestrator(t, port)

	result := o.Create(context.Background(), CreateRequest{
		Volume: "v1", Block: "b1", Mpath: 2,
		Hosts: []string{"127.0.0.21", "127.0.0.22"}, Size: 4096,
	})

	require.Equal(t, "FAIL", result.Status)
	assert.Equal(t, ErrPartialFailure.ExitCode(), result.ErrCode)
	assert.ElementsMatch(t, []string{"127.0.0.21", "127.0.0.22"}, result.RollbackOn)
	// The metadata entry itself is left in place for operator inspection
	// after a rollback; only the per-host configuration is unwound.
	assert.True(t, o.Store.Access("v1", "b1"))
}

func TestCreate_AuthModeGeneratesPassword(t *testing.T) {
	addr, port := startStubPeer(t, wire.ExitOK)
	o := newTestOrchestrator(t, port)

	result := o.Create(context.Background(), CreateRequest{
		Volume: "v1", Block: "b1", Mpath: 1, Hosts: []string{addr}, Size: 4096, AuthMode: true,
	})
	require.Equal(t, "SUCCESS", result.Status)
	assert.NotEmpty(t, result.Password)
}
