// Package wire defines the on-the-wire request and reply types exchanged
// between a manager and a peer's block daemon: an ONC-RPC-flavored framing
// (XID, record marking, AUTH_NULL credentials) carrying an XDR-encoded
// body.
package wire

// Op identifies one of the peer-side procedures.
type Op uint32

const (
	OpCreate Op = iota + 1
	OpDelete
	OpModify
	OpReplace
	OpVersion
	OpPortal
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	case OpModify:
		return "modify"
	case OpReplace:
		return "replace"
	case OpVersion:
		return "version"
	case OpPortal:
		return "portal"
	default:
		return "unknown"
	}
}

// CurrentProtocolVersion is this build's wire protocol version, reported in
// VersionReply so a manager can detect skew against a peer built from an
// incompatible revision before it ever gets to capability negotiation.
const CurrentProtocolVersion int32 = 1

// ExitCode is the remote handler's exit status. Zero is success; positive
// values mirror a shell-style exit code from the peer's local configurator;
// ProcUnavail is a distinguished sentinel meaning the peer does not
// implement the requested procedure at all (a legacy peer).
type ExitCode int32

const (
	ExitOK          ExitCode = 0
	ExitProcUnavail ExitCode = -159
)

func (e ExitCode) IsProcUnavail() bool { return e == ExitProcUnavail }

// Program and Version identify this wire protocol for the RPC header,
// independent of the application-level Op field.
const (
	Program uint32 = 0x23450001
	Version uint32 = 1
)

// CreateRequest is the body of an OpCreate call.
type CreateRequest struct {
	Volume   string
	Block    string
	GBID     string
	Size     int64
	Mpath    int32
	AuthMode bool
	Passwd   string
	Prealloc bool
}

// DeleteRequest is the body of an OpDelete call.
type DeleteRequest struct {
	Volume string
	Block  string
	Force  bool
}

// ModifyRequest is the body of an OpModify call.
type ModifyRequest struct {
	Volume   string
	Block    string
	AuthMode bool
	Passwd   string
}

// ReplaceRequest is the body of an OpReplace call, naming the host being
// replaced and its successor.
type ReplaceRequest struct {
	Volume  string
	Block   string
	OldAddr string
	NewAddr string
	GBID    string
	Size    int64
	Mpath   int32
}

// VersionRequest carries no fields; its presence negotiates capabilities.
type VersionRequest struct{}

// Reply is the common envelope for Create/Delete/Modify/Replace responses.
type Reply struct {
	Exit ExitCode
	Out  string
}

// Capability is one named feature flag a peer reports supporting.
type Capability struct {
	Name   string
	Status bool
}

// VersionReply carries the peer's full capability set and the wire
// protocol version it was built against.
type VersionReply struct {
	Exit            ExitCode
	Caps            []Capability
	ProtocolVersion int32
}

// PortalRequest asks a peer for the portal address and IQN a client would
// use to attach to a block it hosts.
type PortalRequest struct {
	Volume string
	Block  string
}

// PortalReply carries a peer's portal address and IQN for a block.
type PortalReply struct {
	Exit   ExitCode
	Portal string
	IQN    string
}

// LegacyCapabilities is the fixed capability set assumed for any peer that
// answers ProcUnavail to a Version call.
func LegacyCapabilities() []Capability {
	names := []string{
		"create", "create_ha", "create_prealloc", "create_auth",
		"delete", "delete_force", "modify", "modify_auth", "json",
	}
	caps := make([]Capability, len(names))
	for i, n := range names {
		caps[i] = Capability{Name: n, Status: true}
	}
	return caps
}
