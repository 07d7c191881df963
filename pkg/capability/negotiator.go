// Package capability implements the capability negotiator: it queries
// each peer's supported feature set and compares it against the minimum
// required for the requested command.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/pkg/blockrpc"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/metrics"
)

// Set is a peer's reported (or substituted legacy) capability flags.
type Set map[string]bool

// MissingError is returned when a peer lacks a capability the requested
// command requires.
type MissingError struct {
	Cap  string
	Addr string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("peer %s missing required capability %q", e.Addr, e.Cap)
}

// UnreachableError is returned when a peer could not be reached at all
// during negotiation (distinct from a capability miss).
type UnreachableError struct {
	Addr string
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("peer %s unreachable: %v", e.Addr, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// ProtocolSkewError is returned when a peer reports a wire protocol
// version different from this build's, caught before capability
// comparison so a mismatch never surfaces as a confusing MissingError.
type ProtocolSkewError struct {
	Addr string
	Peer int32
	Want int32
}

func (e *ProtocolSkewError) Error() string {
	return fmt.Sprintf("peer %s reports protocol version %d, want %d", e.Addr, e.Peer, e.Want)
}

// VersionCaller is the subset of *blockrpc.Client the negotiator needs;
// it is an interface so tests can substitute a fake peer.
type VersionCaller interface {
	Version(ctx context.Context, addr string) ([]wire.Capability, blockrpc.Result, error)
}

// Negotiator verifies that a list of peers all support a requested
// command's minimum capability set, optionally consulting a Cache first.
type Negotiator struct {
	client  VersionCaller
	cache   *Cache // may be nil
	metrics *metrics.RPCMetrics
}

// NewNegotiator builds a Negotiator. cache may be nil to disable caching.
func NewNegotiator(client VersionCaller, cache *Cache, m *metrics.RPCMetrics) *Negotiator {
	return &Negotiator{client: client, cache: cache, metrics: m}
}

// Verify implements the negotiation algorithm: single-node deployments
// (|list| <= 1) bypass negotiation entirely; otherwise every peer is
// queried in parallel and checked against minCaps.
func (n *Negotiator) Verify(ctx context.Context, peers []string, minCaps map[string]bool) error {
	if len(peers) <= 1 {
		return nil
	}

	type result struct {
		addr string
		caps Set
		err  error
	}
	results := make(chan result, len(peers))
	var wg sync.WaitGroup
	for _, addr := range peers {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			caps, err := n.resolve(ctx, addr)
			results <- result{addr: addr, caps: caps, err: err}
		}(addr)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	byAddr := make(map[string]Set, len(peers))
	for r := range results {
		if r.err != nil {
			var skew *ProtocolSkewError
			if errors.As(r.err, &skew) {
				return skew
			}
			return &UnreachableError{Addr: r.addr, Err: r.err}
		}
		byAddr[r.addr] = r.caps
	}

	for cap, required := range minCaps {
		if !required {
			continue
		}
		for _, addr := range peers {
			if !byAddr[addr][cap] {
				return &MissingError{Cap: cap, Addr: addr}
			}
		}
	}
	return nil
}

// resolve returns addr's capability set, consulting the cache first and
// falling back to a Version RPC (substituting the legacy set on
// ProcUnavail) on miss.
func (n *Negotiator) resolve(ctx context.Context, addr string) (Set, error) {
	if n.cache != nil {
		if caps, ok := n.cache.Get(addr); ok {
			if n.metrics != nil {
				n.metrics.RecordCapabilityCacheResult(true)
			}
			return caps, nil
		}
	}
	if n.metrics != nil {
		n.metrics.RecordCapabilityCacheResult(false)
	}

	wireCaps, res, err := n.client.Version(ctx, addr)
	if err != nil {
		return nil, err
	}

	var caps []wire.Capability
	if res.Exit.IsProcUnavail() {
		logger.DebugCtx(ctx, "peer reports legacy capabilities", logger.Addr(addr))
		caps = wire.LegacyCapabilities()
	} else {
		if res.ProtocolVersion != 0 && res.ProtocolVersion != wire.CurrentProtocolVersion {
			return nil, &ProtocolSkewError{Addr: addr, Peer: res.ProtocolVersion, Want: wire.CurrentProtocolVersion}
		}
		caps = wireCaps
	}

	set := make(Set, len(caps))
	for _, c := range caps {
		set[c.Name] = c.Status
	}
	if n.cache != nil {
		n.cache.Put(addr, set)
	}
	return set, nil
}

// MinCapsFor computes the minimum capability requirements implied by a
// create-style request, per the negotiation algorithm's stated rule: HA
// requires create_ha, auth requires *_auth, JSON output requires json.
func MinCapsFor(op string, mpath int, authMode, prealloc, jsonOutput bool) map[string]bool {
	min := map[string]bool{op: true}
	if mpath > 1 {
		min["create_ha"] = true
	}
	if prealloc {
		min["create_prealloc"] = true
	}
	if authMode {
		min[op+"_auth"] = true
	}
	if jsonOutput {
		min["json"] = true
	}
	return min
}
