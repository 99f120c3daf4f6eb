// Package protocol implements the watchd control-plane wire format.
//
// A client sends one 4-byte command code and reads one response frame: a
// 4-byte length followed by that many bytes of UTF-8. Integers use the host
// byte order. One request is served per connection.
package protocol

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/grovetools/watchd/errors"
)

// Command is a control-plane request code.
type Command uint32

const (
	// CmdListFiles returns the comma-separated list of detected files.
	CmdListFiles Command = 0
	// CmdQuit acknowledges and shuts the daemon down.
	CmdQuit Command = 1
	// CmdStatus returns a JSON Status document.
	CmdStatus Command = 2
)

// MaxFrameSize bounds a response frame.
const MaxFrameSize = 64 << 20

// QuitAck is the payload answering CmdQuit.
const QuitAck = "watchd: shutting down"

// ListSeparator joins paths in a ListFiles frame.
const ListSeparator = ","

// ByteOrder is the order of every integer on the wire.
var ByteOrder = binary.NativeEndian

func (c Command) String() string {
	switch c {
	case CmdListFiles:
		return "ListFiles"
	case CmdQuit:
		return "Quit"
	case CmdStatus:
		return "Status"
	default:
		return fmt.Sprintf("Command(%d)", uint32(c))
	}
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return c <= CmdStatus
}

// WriteCommand sends a command code.
func WriteCommand(w io.Writer, c Command) error {
	var buf [4]byte
	ByteOrder.PutUint32(buf[:], uint32(c))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

// ReadCommand reads a command code. A short read or an unknown code is a
// PROTOCOL_ERROR.
func ReadCommand(r io.Reader) (Command, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.Protocol("truncated command", err)
	}
	c := Command(ByteOrder.Uint32(buf[:]))
	if !c.Valid() {
		return 0, errors.Protocol(fmt.Sprintf("unknown command code %d", uint32(c)), nil)
	}
	return c, nil
}

// WriteFrame sends a length-prefixed payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return errors.Protocol(fmt.Sprintf("frame of %d bytes exceeds limit", len(payload)), nil)
	}
	buf := make([]byte, 4+len(payload))
	ByteOrder.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads a length-prefixed payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Protocol("truncated frame header", err)
	}
	n := ByteOrder.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, errors.Protocol(fmt.Sprintf("frame of %d bytes exceeds limit", n), nil)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if stderrors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Protocol("truncated frame payload", err)
	}
	return payload, nil
}

// WriteString sends s as one frame.
func WriteString(w io.Writer, s string) error {
	return WriteFrame(w, []byte(s))
}

// ReadString reads one frame as a string.
func ReadString(r io.Reader) (string, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// EncodeFileList joins paths for a ListFiles frame. No paths yields "".
func EncodeFileList(paths []string) string {
	return strings.Join(paths, ListSeparator)
}

// DecodeFileList splits a ListFiles payload. "" yields no paths.
func DecodeFileList(payload string) []string {
	if payload == "" {
		return nil
	}
	return strings.Split(payload, ListSeparator)
}
