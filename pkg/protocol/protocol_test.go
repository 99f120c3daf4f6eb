package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/watchd/errors"
)

func TestCommandRoundTrip(t *testing.T) {
	for _, c := range []Command{CmdListFiles, CmdQuit, CmdStatus} {
		var buf bytes.Buffer
		require.NoError(t, WriteCommand(&buf, c))
		assert.Equal(t, 4, buf.Len(), "command codes are 4 bytes")

		got, err := ReadCommand(&buf)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestCommandUsesHostOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCommand(&buf, CmdQuit))
	assert.Equal(t, uint32(1), binary.NativeEndian.Uint32(buf.Bytes()))
}

func TestReadCommandRejectsMalformedInput(t *testing.T) {
	_, err := ReadCommand(bytes.NewReader([]byte{1, 0}))
	assert.True(t, errors.Is(err, errors.ErrCodeProtocol), "truncated: %v", err)

	_, err = ReadCommand(bytes.NewReader(nil))
	assert.True(t, errors.Is(err, errors.ErrCodeProtocol), "empty: %v", err)

	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], 99)
	_, err = ReadCommand(bytes.NewReader(buf[:]))
	assert.True(t, errors.Is(err, errors.ErrCodeProtocol), "unknown: %v", err)
}

func TestEmptyListIsZeroLengthFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteString(&buf, EncodeFileList(nil)))

	assert.Equal(t, 4, buf.Len())
	assert.Equal(t, uint32(0), binary.NativeEndian.Uint32(buf.Bytes()))

	s, err := ReadString(&buf)
	require.NoError(t, err)
	assert.Equal(t, "", s)
	assert.Empty(t, DecodeFileList(s))
}

func TestFileListFraming(t *testing.T) {
	for n := 1; n <= 5; n++ {
		var paths []string
		for i := 0; i < n; i++ {
			paths = append(paths, "/music/"+strings.Repeat("x", i+1)+".flac")
		}

		var buf bytes.Buffer
		require.NoError(t, WriteString(&buf, EncodeFileList(paths)))

		s, err := ReadString(&buf)
		require.NoError(t, err)
		assert.False(t, strings.HasSuffix(s, ListSeparator), "stray separator in %q", s)
		assert.Equal(t, paths, DecodeFileList(s))
	}
}

func TestFrameNoTerminator(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteString(&buf, "héllo"))
	assert.Equal(t, 4+len("héllo"), buf.Len())
}

func TestReadFrameRejectsTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.NativeEndian.PutUint32(hdr[:], 10)
	buf.Write(hdr[:])
	buf.WriteString("short")

	_, err := ReadFrame(&buf)
	assert.True(t, errors.Is(err, errors.ErrCodeProtocol))
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var hdr [4]byte
	binary.NativeEndian.PutUint32(hdr[:], MaxFrameSize+1)

	_, err := ReadFrame(bytes.NewReader(hdr[:]))
	assert.True(t, errors.Is(err, errors.ErrCodeProtocol))
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "ListFiles", CmdListFiles.String())
	assert.Equal(t, "Command(7)", Command(7).String())
	assert.False(t, Command(7).Valid())
}
