package blockrpc

import (
	"context"
	"errors"
	"net"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/iscsi"
)

// Server is the peer-side listener: it accepts create/delete/modify/
// replace/version/portal, applies the node-local iSCSI configuration, and
// replies with the exit code and output. It writes no per-host status
// lines; the manager's fan-out executor appends those.
type Server struct {
	store   *blockmeta.Store
	iscsi   iscsi.Configurator
	backlog int
}

// NewServer returns a peer daemon server backed by store for metadata and
// cfg for node-local iSCSI target configuration.
func NewServer(store *blockmeta.Store, cfg iscsi.Configurator) *Server {
	return &Server{store: store, iscsi: cfg, backlog: 128}
}

// Serve accepts connections on ln until ctx is done or ln is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	hdr, body, err := wire.DecodeCall(conn)
	if err != nil {
		logger.WarnCtx(ctx, "peer rpc decode failed", logger.Err(err))
		return
	}

	lc := logger.NewLogContext(hdr.Procedure.String(), "", "").WithAddr(conn.RemoteAddr().String())
	ctx = logger.WithContext(ctx, lc)

	switch hdr.Procedure {
	case wire.OpVersion:
		s.handleVersion(ctx, conn, hdr.XID)
	case wire.OpCreate:
		s.handle(ctx, conn, hdr, body, new(wire.CreateRequest), s.doCreate)
	case wire.OpDelete:
		s.handle(ctx, conn, hdr, body, new(wire.DeleteRequest), s.doDelete)
	case wire.OpModify:
		s.handle(ctx, conn, hdr, body, new(wire.ModifyRequest), s.doModify)
	case wire.OpReplace:
		s.handle(ctx, conn, hdr, body, new(wire.ReplaceRequest), s.doReplace)
	case wire.OpPortal:
		s.handlePortal(ctx, conn, hdr, body)
	default:
		_ = wire.EncodeReply(conn, hdr.XID, wire.Reply{Exit: wire.ExitProcUnavail})
	}
}

func (s *Server) handleVersion(ctx context.Context, conn net.Conn, xid uint32) {
	reply := wire.VersionReply{Exit: wire.ExitOK, Caps: SupportedCapabilities(), ProtocolVersion: wire.CurrentProtocolVersion}
	if err := wire.EncodeReply(conn, xid, reply); err != nil {
		logger.WarnCtx(ctx, "peer rpc reply failed", logger.Err(err))
	}
}

func (s *Server) handlePortal(ctx context.Context, conn net.Conn, hdr wire.CallHeader, body []byte) {
	var req wire.PortalRequest
	if err := wire.UnmarshalBody(body, &req); err != nil {
		logger.WarnCtx(ctx, "peer rpc malformed request", logger.Err(err))
		_ = wire.EncodeReply(conn, hdr.XID, wire.PortalReply{Exit: 1})
		return
	}
	reply := wire.PortalReply{Exit: wire.ExitOK, Portal: s.iscsi.Portal(), IQN: s.iscsi.IQN(req.Volume, req.Block)}
	if err := wire.EncodeReply(conn, hdr.XID, reply); err != nil {
		logger.WarnCtx(ctx, "peer rpc reply failed", logger.Err(err))
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn, hdr wire.CallHeader, body []byte, req any, fn func(context.Context, any) (int, string)) {
	if err := wire.UnmarshalBody(body, req); err != nil {
		logger.WarnCtx(ctx, "peer rpc malformed request", logger.Err(err))
		_ = wire.EncodeReply(conn, hdr.XID, wire.Reply{Exit: 1, Out: "malformed request"})
		return
	}

	exit, out := fn(ctx, req)
	if err := wire.EncodeReply(conn, hdr.XID, wire.Reply{Exit: wire.ExitCode(exit), Out: out}); err != nil {
		logger.WarnCtx(ctx, "peer rpc reply failed", logger.Err(err))
	}
}

func (s *Server) doCreate(ctx context.Context, r any) (int, string) {
	req := r.(*wire.CreateRequest)
	if err := s.store.CreateBackingFile(req.Volume, req.Block, req.Size, req.Prealloc); err != nil {
		return 1, err.Error()
	}
	exit, out := s.iscsi.Configure(iscsi.Request{
		Volume: req.Volume, Block: req.Block, GBID: req.GBID,
		Path: s.store.BackingFilePath(req.Volume, req.Block), Size: req.Size,
		AuthMode: req.AuthMode, Passwd: req.Passwd, Action: iscsi.ActionExport,
	})
	if exit != 0 {
		return exit, out
	}
	if req.AuthMode {
		return s.iscsi.Configure(iscsi.Request{
			Volume: req.Volume, Block: req.Block, Passwd: req.Passwd, Action: iscsi.ActionEnableAuth,
		})
	}
	return 0, out
}

func (s *Server) doDelete(ctx context.Context, r any) (int, string) {
	req := r.(*wire.DeleteRequest)
	exit, out := s.iscsi.Configure(iscsi.Request{Volume: req.Volume, Block: req.Block, Action: iscsi.ActionUnexport})
	if exit != 0 && !req.Force {
		return exit, out
	}
	if err := s.store.RemoveBackingFile(req.Volume, req.Block); err != nil {
		return 1, err.Error()
	}
	return 0, out
}

func (s *Server) doModify(ctx context.Context, r any) (int, string) {
	req := r.(*wire.ModifyRequest)
	action := iscsi.ActionDisableAuth
	if req.AuthMode {
		action = iscsi.ActionEnableAuth
	}
	return s.iscsi.Configure(iscsi.Request{Volume: req.Volume, Block: req.Block, Passwd: req.Passwd, Action: action})
}

func (s *Server) doReplace(ctx context.Context, r any) (int, string) {
	req := r.(*wire.ReplaceRequest)
	if err := s.store.CreateBackingFile(req.Volume, req.Block, req.Size, false); err != nil {
		return 1, err.Error()
	}
	return s.iscsi.Configure(iscsi.Request{
		Volume: req.Volume, Block: req.Block, GBID: req.GBID,
		Path: s.store.BackingFilePath(req.Volume, req.Block), Size: req.Size, Action: iscsi.ActionExport,
	})
}

// SupportedCapabilities is the feature set this server implementation
// reports to Version calls.
func SupportedCapabilities() []wire.Capability {
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
