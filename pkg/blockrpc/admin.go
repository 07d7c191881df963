package blockrpc

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/orchestrator"
	"github.com/blockd/blockd/pkg/render"
)

// AdminServer is the manager-side listener blockctl dials. Every call maps
// one-to-one onto an Orchestrator operation; the reply carries the fully
// rendered output so blockctl stays a thin transport.
type AdminServer struct {
	orch *orchestrator.Orchestrator
}

// NewAdminServer returns an admin listener backed by orch.
func NewAdminServer(orch *orchestrator.Orchestrator) *AdminServer {
	return &AdminServer{orch: orch}
}

// Serve accepts admin connections on ln until ctx is done or ln is closed.
func (s *AdminServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *AdminServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	hdr, body, err := wire.DecodeCall(conn)
	if err != nil {
		logger.WarnCtx(ctx, "admin rpc decode failed", logger.Err(err))
		return
	}
	op := wire.AdminOp(hdr.Procedure)

	var result *render.Result
	var asJSON bool

	switch op {
	case wire.AdminOpCreate:
		var req wire.AdminCreateRequest
		if err := wire.UnmarshalBody(body, &req); err != nil {
			return
		}
		asJSON = req.JSON
		result = s.orch.Create(ctx, orchestrator.CreateRequest{
			Volume: req.Volume, Block: req.Block, Mpath: int(req.Mpath), Hosts: req.Hosts,
			Size: req.Size, AuthMode: req.AuthMode, Prealloc: req.Prealloc, JSON: req.JSON,
		})
	case wire.AdminOpDelete:
		var req wire.AdminDeleteRequest
		if err := wire.UnmarshalBody(body, &req); err != nil {
			return
		}
		asJSON = req.JSON
		result = s.orch.Delete(ctx, orchestrator.DeleteRequest{
			Volume: req.Volume, Block: req.Block, Unlink: req.Unlink, Force: req.Force, JSON: req.JSON,
		})
	case wire.AdminOpModify:
		var req wire.AdminModifyRequest
		if err := wire.UnmarshalBody(body, &req); err != nil {
			return
		}
		asJSON = req.JSON
		result = s.orch.Modify(ctx, orchestrator.ModifyRequest{
			Volume: req.Volume, Block: req.Block, AuthMode: req.AuthMode, JSON: req.JSON,
		})
	case wire.AdminOpReplace:
		var req wire.AdminReplaceRequest
		if err := wire.UnmarshalBody(body, &req); err != nil {
			return
		}
		asJSON = req.JSON
		result = s.orch.Replace(ctx, orchestrator.ReplaceRequest{
			Volume: req.Volume, Block: req.Block, OldNode: req.OldNode, NewNode: req.NewNode,
			Force: req.Force, JSON: req.JSON,
		})
	case wire.AdminOpList:
		var req wire.AdminListRequest
		if err := wire.UnmarshalBody(body, &req); err != nil {
			return
		}
		asJSON = req.JSON
		blocks, err := s.orch.List(ctx, req.Volume, req.All)
		if err != nil {
			result = orchestrator.Fail(req.Volume, "", err)
		} else {
			result = orchestrator.ListResult(req.Volume, blocks)
		}
	case wire.AdminOpInfo:
		var req wire.AdminInfoRequest
		if err := wire.UnmarshalBody(body, &req); err != nil {
			return
		}
		asJSON = req.JSON
		m, err := s.orch.Info(ctx, req.Volume, req.Block)
		if err != nil {
			result = orchestrator.Fail(req.Volume, req.Block, err)
		} else {
			portals, iqn := s.orch.Portals(ctx, req.Volume, m)
			result = orchestrator.InfoResult(m, portals, iqn)
		}
	default:
		_ = wire.EncodeReply(conn, hdr.XID, wire.AdminReply{ExitCode: int32(wire.ExitProcUnavail), Output: "unknown admin procedure"})
		return
	}

	reply := wire.AdminReply{ExitCode: int32(resultExitCode(result)), Output: renderResult(result, asJSON)}
	if err := wire.EncodeReply(conn, hdr.XID, reply); err != nil {
		logger.WarnCtx(ctx, "admin rpc reply failed", logger.Err(err))
	}
}

func resultExitCode(r *render.Result) int {
	if r == nil || r.Status == "SUCCESS" {
		return 0
	}
	return r.ErrCode
}

func renderResult(r *render.Result, asJSON bool) string {
	var buf bytes.Buffer
	if asJSON {
		_ = render.JSON(&buf, r)
	} else {
		_ = render.Plain(&buf, r)
	}
	return buf.String()
}

// AdminClient dials a manager's admin listener and issues one call at a
// time, matching blockrpc.Client's one-shot-connection style.
type AdminClient struct {
	addr        string
	port        int
	dialTimeout time.Duration
	callTimeout time.Duration
}

// NewAdminClient builds an AdminClient dialing addr:port.
func NewAdminClient(addr string, port int, dialTimeout, callTimeout time.Duration) *AdminClient {
	return &AdminClient{addr: addr, port: port, dialTimeout: dialTimeout, callTimeout: callTimeout}
}

// Call issues op with body and returns the manager's rendered reply.
func (c *AdminClient) Call(ctx context.Context, op wire.AdminOp, body any) (wire.AdminReply, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", net.JoinHostPort(c.addr, fmt.Sprintf("%d", c.port)))
	if err != nil {
		return wire.AdminReply{}, fmt.Errorf("dial admin listener %s: %w", c.addr, err)
	}
	defer conn.Close()

	if c.callTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.callTimeout))
	}

	if err := wire.EncodeCall(conn, 1, wire.Op(op), body); err != nil {
		return wire.AdminReply{}, fmt.Errorf("encode admin call: %w", err)
	}

	var reply wire.AdminReply
	if _, err := wire.DecodeReply(conn, &reply); err != nil {
		return wire.AdminReply{}, fmt.Errorf("decode admin reply: %w", err)
	}
	return reply, nil
}
