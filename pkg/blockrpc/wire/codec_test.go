package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCall_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := CreateRequest{Volume: "v1", Block: "b1", GBID: "gbid-1", Size: 1024, Mpath: 2}

	require.NoError(t, EncodeCall(&buf, 42, OpCreate, req))

	hdr, body, err := DecodeCall(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), hdr.XID)
	assert.Equal(t, OpCreate, hdr.Procedure)
	assert.Equal(t, Program, hdr.Program)

	var decoded CreateRequest
	require.NoError(t, UnmarshalBody(body, &decoded))
	assert.Equal(t, req, decoded)
}

func TestEncodeDecodeReply_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	reply := Reply{Exit: ExitOK, Out: "ok"}

	require.NoError(t, EncodeReply(&buf, 7, reply))

	var decoded Reply
	hdr, err := DecodeReply(&buf, &decoded)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), hdr.XID)
	assert.Equal(t, reply, decoded)
}

func TestDecodeCall_RejectsMultiFragment(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeCall(&buf, 1, OpVersion, VersionRequest{}))

	raw := buf.Bytes()
	raw[0] &^= 0x80 // clear the last-fragment bit

	_, _, err := DecodeCall(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestExitCode_IsProcUnavail(t *testing.T) {
	assert.True(t, ExitProcUnavail.IsProcUnavail())
	assert.False(t, ExitOK.IsProcUnavail())
}

func TestLegacyCapabilities_AllEnabled(t *testing.T) {
	caps := LegacyCapabilities()
	require.NotEmpty(t, caps)
	for _, c := range caps {
		assert.True(t, c.Status)
	}
}
