package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

const (
	msgCall  uint32 = 0
	msgReply uint32 = 1

	authNull uint32 = 0

	maxFragment = 4 << 20 // 4MiB; generous for any single call/reply body
)

// CallHeader precedes an XDR-encoded request body on the wire.
type CallHeader struct {
	XID       uint32
	Program   uint32
	Version   uint32
	Procedure Op
}

// ReplyHeader precedes an XDR-encoded reply body on the wire.
type ReplyHeader struct {
	XID uint32
}

// EncodeCall writes a framed call message: record mark, call header with
// AUTH_NULL credentials, then the XDR-encoded body.
func EncodeCall(w io.Writer, xid uint32, op Op, body any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, xid); err != nil {
		return fmt.Errorf("write xid: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, msgCall); err != nil {
		return fmt.Errorf("write msg type: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, Program); err != nil {
		return fmt.Errorf("write program: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, Version); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(op)); err != nil {
		return fmt.Errorf("write procedure: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, authNull); err != nil {
		return fmt.Errorf("write cred flavor: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(0)); err != nil {
		return fmt.Errorf("write cred length: %w", err)
	}
	if body != nil {
		if _, err := xdr.Marshal(&buf, body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}
	return writeFrame(w, buf.Bytes())
}

// DecodeCall reads a framed call message and returns its header plus the
// still-XDR-encoded body, which the caller unmarshals according to op.
func DecodeCall(r io.Reader) (CallHeader, []byte, error) {
	frame, err := readFrame(r)
	if err != nil {
		return CallHeader{}, nil, err
	}
	br := bytes.NewReader(frame)

	var hdr CallHeader
	var msgType, program, version, proc, credFlavor, credLen uint32
	for _, f := range []*uint32{&hdr.XID, &msgType, &program, &version, &proc, &credFlavor, &credLen} {
		if err := binary.Read(br, binary.BigEndian, f); err != nil {
			return CallHeader{}, nil, fmt.Errorf("read call header: %w", err)
		}
	}
	if msgType != msgCall {
		return CallHeader{}, nil, fmt.Errorf("unexpected message type %d", msgType)
	}
	if credLen > 0 {
		if _, err := io.CopyN(io.Discard, br, int64(credLen)); err != nil {
			return CallHeader{}, nil, fmt.Errorf("skip cred body: %w", err)
		}
	}
	hdr.Program, hdr.Version, hdr.Procedure = program, version, Op(proc)

	rest, err := io.ReadAll(br)
	if err != nil {
		return CallHeader{}, nil, fmt.Errorf("read call body: %w", err)
	}
	return hdr, rest, nil
}

// EncodeReply writes a framed reply message: record mark, reply header,
// then the XDR-encoded body.
func EncodeReply(w io.Writer, xid uint32, body any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, xid); err != nil {
		return fmt.Errorf("write xid: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, msgReply); err != nil {
		return fmt.Errorf("write msg type: %w", err)
	}
	if body != nil {
		if _, err := xdr.Marshal(&buf, body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}
	return writeFrame(w, buf.Bytes())
}

// DecodeReply reads a framed reply message and unmarshals its body into out.
func DecodeReply(r io.Reader, out any) (ReplyHeader, error) {
	frame, err := readFrame(r)
	if err != nil {
		return ReplyHeader{}, err
	}
	br := bytes.NewReader(frame)

	var hdr ReplyHeader
	var msgType uint32
	if err := binary.Read(br, binary.BigEndian, &hdr.XID); err != nil {
		return ReplyHeader{}, fmt.Errorf("read reply xid: %w", err)
	}
	if err := binary.Read(br, binary.BigEndian, &msgType); err != nil {
		return ReplyHeader{}, fmt.Errorf("read reply msg type: %w", err)
	}
	if msgType != msgReply {
		return ReplyHeader{}, fmt.Errorf("unexpected message type %d", msgType)
	}
	if out != nil {
		if _, err := xdr.Unmarshal(br, out); err != nil {
			return ReplyHeader{}, fmt.Errorf("unmarshal reply body: %w", err)
		}
	}
	return hdr, nil
}

// UnmarshalBody decodes a call's still-raw body into req.
func UnmarshalBody(body []byte, req any) error {
	_, err := xdr.Unmarshal(bytes.NewReader(body), req)
	if err != nil {
		return fmt.Errorf("unmarshal call body: %w", err)
	}
	return nil
}

// writeFrame adds RPC-style record marking: a 4-byte header whose top bit
// marks the final (and, here, only) fragment and whose low 31 bits carry
// the fragment length.
func writeFrame(w io.Writer, msg []byte) error {
	header := uint32(len(msg)) | 0x80000000
	full := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(full[0:4], header)
	copy(full[4:], msg)
	_, err := w.Write(full)
	return err
}

// readFrame reads one record-marked fragment. Only single-fragment
// messages are supported; any larger message is rejected by maxFragment.
func readFrame(r io.Reader) ([]byte, error) {
	var headerBuf [4]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	header := binary.BigEndian.Uint32(headerBuf[:])
	if header&0x80000000 == 0 {
		return nil, fmt.Errorf("multi-fragment messages are not supported")
	}
	fragLen := header & 0x7FFFFFFF
	if fragLen > maxFragment {
		return nil, fmt.Errorf("frame too large: %d bytes", fragLen)
	}
	body := make([]byte, fragLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}
