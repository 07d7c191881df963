package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockd/blockd/pkg/blockrpc"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

type fakeCaller struct {
	byAddr  map[string][]wire.Capability
	fail    map[string]error
	legacy  map[string]bool
	version map[string]int32
}

func (f *fakeCaller) Version(ctx context.Context, addr string) ([]wire.Capability, blockrpc.Result, error) {
	if err, ok := f.fail[addr]; ok {
		return nil, blockrpc.Result{RPCSent: false}, err
	}
	if f.legacy[addr] {
		return nil, blockrpc.Result{Exit: wire.ExitProcUnavail, RPCSent: true}, nil
	}
	return f.byAddr[addr], blockrpc.Result{Exit: wire.ExitOK, ProtocolVersion: f.version[addr], RPCSent: true}, nil
}

func TestVerify_SingleNodeBypassesNegotiation(t *testing.T) {
	n := NewNegotiator(&fakeCaller{}, nil, nil)
	err := n.Verify(context.Background(), []string{"10.0.0.1"}, map[string]bool{"create_ha": true})
	assert.NoError(t, err)
}

func TestVerify_AllPeersHaveCapability(t *testing.T) {
	caller := &fakeCaller{byAddr: map[string][]wire.Capability{
		"10.0.0.1": {{Name: "create_ha", Status: true}},
		"10.0.0.2": {{Name: "create_ha", Status: true}},
	}}
	n := NewNegotiator(caller, nil, nil)
	err := n.Verify(context.Background(), []string{"10.0.0.1", "10.0.0.2"}, map[string]bool{"create_ha": true})
	assert.NoError(t, err)
}

func TestVerify_MissingCapabilityReturnsTypedError(t *testing.T) {
	caller := &fakeCaller{byAddr: map[string][]wire.Capability{
		"10.0.0.1": {{Name: "create_ha", Status: true}},
		"10.0.0.2": {{Name: "create_ha", Status: false}},
	}}
	n := NewNegotiator(caller, nil, nil)
	err := n.Verify(context.Background(), []string{"10.0.0.1", "10.0.0.2"}, map[string]bool{"create_ha": true})
	require.Error(t, err)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "create_ha", missing.Cap)
	assert.Equal(t, "10.0.0.2", missing.Addr)
}

func TestVerify_LegacyPeerSubstitutesFixedSet(t *testing.T) {
	caller := &fakeCaller{
		byAddr: map[string][]wire.Capability{"10.0.0.1": {{Name: "create", Status: true}}},
		legacy: map[string]bool{"10.0.0.2": true},
	}
	n := NewNegotiator(caller, nil, nil)
	err := n.Verify(context.Background(), []string{"10.0.0.1", "10.0.0.2"}, map[string]bool{"create": true})
	assert.NoError(t, err)
}

func TestVerify_UnreachablePeerReturnsTypedError(t *testing.T) {
	caller := &fakeCaller{fail: map[string]error{"10.0.0.2": errors.New("connection refused")}}
	n := NewNegotiator(caller, nil, nil)
	err := n.Verify(context.Background(), []string{"10.0.0.1", "10.0.0.2"}, map[string]bool{"create": true})
	require.Error(t, err)
	var unreachable *UnreachableError
	require.ErrorAs(t, err, &unreachable)
	assert.Equal(t, "10.0.0.2", unreachable.Addr)
}

func TestVerify_ProtocolSkewReturnsTypedError(t *testing.T) {
	caller := &fakeCaller{
		byAddr:  map[string][]wire.Capability{"10.0.0.1": {{Name: "create", Status: true}}},
		version: map[string]int32{"10.0.0.1": wire.CurrentProtocolVersion, "10.0.0.2": wire.CurrentProtocolVersion + 1},
	}
	n := NewNegotiator(caller, nil, nil)
	err := n.Verify(context.Background(), []string{"10.0.0.1", "10.0.0.2"}, map[string]bool{"create": true})
	require.Error(t, err)
	var skew *ProtocolSkewError
	require.ErrorAs(t, err, &skew)
	assert.Equal(t, "10.0.0.2", skew.Addr)
	assert.Equal(t, wire.CurrentProtocolVersion+1, skew.Peer)
	assert.Equal(t, wire.CurrentProtocolVersion, skew.Want)
}

func TestVerify_UnreportedProtocolVersionSkipsSkewCheck(t *testing.T) {
	caller := &fakeCaller{
		byAddr: map[string][]wire.Capability{
			"10.0.0.1": {{Name: "create", Status: true}},
			"10.0.0.2": {{Name: "create", Status: true}},
		},
	}
	n := NewNegotiator(caller, nil, nil)
	err := n.Verify(context.Background(), []string{"10.0.0.1", "10.0.0.2"}, map[string]bool{"create": true})
	assert.NoError(t, err)
}

func TestMinCapsFor(t *testing.T) {
	min := MinCapsFor("create", 3, true, true, true)
	assert.True(t, min["create"])
	assert.True(t, min["create_ha"])
	assert.True(t, min["create_prealloc"])
	assert.True(t, min["create_auth"])
	assert.True(t, min["json"])

	min = MinCapsFor("create", 1, false, false, false)
	assert.True(t, min["create"])
	assert.NotContains(t, min, "create_ha")
}
