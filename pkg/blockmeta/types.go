// Package blockmeta implements the metadata store: the per-volume lockfile
// and per-block append-only status log that is the single source of truth
// for a block's attributes and per-host state.
package blockmeta

import (
	"fmt"
	"strings"
)

// HostEntry is one peer's current projected state for a block.
type HostEntry struct {
	Addr   string
	Status Status
}

// MetaInfo is the authoritative, in-memory projection of a block's
// metadata log: header fields plus the last-write-wins status per host.
//
// MetaInfo is exclusively owned by whichever orchestrator currently holds
// the volume's metadata lock. Readers outside the lock see a snapshot that
// may be stale the instant it is returned.
type MetaInfo struct {
	Volume string
	Block  string
	GBID   string
	Size   int64
	Mpath  int
	Passwd string

	// EntryPhase/EntryOutcome reflect the last-written ENTRYCREATE/
	// ENTRYDELETE line, whichever came later in the log.
	EntryPhase   EntryPhase
	EntryOutcome EntryOutcome

	// List is ordered by first appearance in the log. Duplicate addresses
	// are folded into a single entry, with the last status written winning.
	List []HostEntry
}

// NHosts is the number of distinct hosts with a current-status projection.
func (m *MetaInfo) NHosts() int { return len(m.List) }

// HostStatus returns the current status for addr and whether it is present.
func (m *MetaInfo) HostStatus(addr string) (Status, bool) {
	for _, h := range m.List {
		if h.Addr == addr {
			return h.Status, true
		}
	}
	return "", false
}

// CountStatus returns the number of hosts whose current status satisfies pred.
func (m *MetaInfo) CountStatus(pred func(Status) bool) int {
	n := 0
	for _, h := range m.List {
		if pred(h.Status) {
			n++
		}
	}
	return n
}

// HostsWith returns, in list order, the addresses whose current status
// satisfies pred.
func (m *MetaInfo) HostsWith(pred func(Status) bool) []string {
	var out []string
	for _, h := range m.List {
		if pred(h.Status) {
			out = append(out, h.Addr)
		}
	}
	return out
}

// String renders a MetaInfo for diagnostic logging.
func (m *MetaInfo) String() string {
	return fmt.Sprintf("MetaInfo{volume=%s block=%s gbid=%s mpath=%d hosts=%d}",
		m.Volume, m.Block, m.GBID, m.Mpath, len(m.List))
}

// ServerList is a parsed, ordered, duplicate-free list of peer addresses.
type ServerList []string

// ParseServerList parses a comma-separated peer list, rejecting duplicates
// and empty entries.
func ParseServerList(csv string) (ServerList, error) {
	var out ServerList
	seen := make(map[string]struct{})
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if _, dup := seen[tok]; dup {
			return nil, fmt.Errorf("duplicate host %q in server list", tok)
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty server list")
	}
	return out, nil
}
