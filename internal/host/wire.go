// Package host talks to the game editor process that owns the type
// database: a TCP stream of length-prefixed binary messages.
package host

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"scriptls/internal/core/errors"
)

type MessageType uint8

// Numbering follows the editor plugin's message enumeration.
const (
	MsgDiagnostics            MessageType = 0
	MsgRequestDebugDatabase   MessageType = 1
	MsgDebugDatabase          MessageType = 2
	MsgDisconnect             MessageType = 25
	MsgDebugDatabaseFinished  MessageType = 26
	MsgAssetDatabaseInit      MessageType = 27
	MsgAssetDatabase          MessageType = 28
	MsgAssetDatabaseFinished  MessageType = 29
	MsgFindAssets             MessageType = 30
	MsgDebugDatabaseSettings  MessageType = 31
	MsgCreateBlueprint        MessageType = 34
	MsgReplaceAssetDefinition MessageType = 35
)

func (t MessageType) String() string {
	switch t {
	case MsgDiagnostics:
		return "diagnostics"
	case MsgRequestDebugDatabase:
		return "request_debug_database"
	case MsgDebugDatabase:
		return "debug_database"
	case MsgDisconnect:
		return "disconnect"
	case MsgDebugDatabaseFinished:
		return "debug_database_finished"
	case MsgAssetDatabaseInit:
		return "asset_database_init"
	case MsgAssetDatabase:
		return "asset_database"
	case MsgAssetDatabaseFinished:
		return "asset_database_finished"
	case MsgFindAssets:
		return "find_assets"
	case MsgDebugDatabaseSettings:
		return "debug_database_settings"
	case MsgCreateBlueprint:
		return "create_blueprint"
	case MsgReplaceAssetDefinition:
		return "replace_asset_definition"
	default:
		return fmt.Sprintf("type_%d", uint8(t))
	}
}

// MaxFrameSize bounds a single frame; type snapshots are sent in chunks far
// below this.
const MaxFrameSize = 256 << 20

type Message struct {
	Type MessageType
	Body []byte
}

// ReadMessage reads one frame: uint32 LE length of type byte plus body,
// the type byte, then the body. Protocol errors leave the reader positioned
// at the next frame; any other error means the stream is unusable.
func ReadMessage(r io.Reader) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 {
		return Message{}, errors.New(errors.CodeProtocol, "empty host frame")
	}
	if length > MaxFrameSize {
		// Skip the frame so the stream stays aligned on the next header.
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return Message{}, err
		}
		return Message{}, errors.New(errors.CodeProtocol, fmt.Sprintf("host frame of %d bytes exceeds limit", length))
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return Message{}, err
	}
	return Message{Type: MessageType(frame[0]), Body: frame[1:]}, nil
}

// EncodeMessage frames body for sending.
func EncodeMessage(t MessageType, body []byte) []byte {
	out := make([]byte, 5+len(body))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(body)+1))
	out[4] = byte(t)
	copy(out[5:], body)
	return out
}

// Reader decodes body primitives. The first failure sticks; later reads
// return zero values and Err reports it.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(body []byte) *Reader {
	return &Reader{buf: body}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = errors.New(errors.CodeProtocol, fmt.Sprintf("truncated host message at offset %d", r.off))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadInt() int {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int(int32(binary.LittleEndian.Uint32(b)))
}

func (r *Reader) ReadBool() bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}

func (r *Reader) ReadString() string {
	n := r.ReadInt()
	if r.err != nil {
		return ""
	}
	if n < 0 {
		r.err = errors.New(errors.CodeProtocol, fmt.Sprintf("negative string length %d", n))
		return ""
	}
	return string(r.take(n))
}

func (r *Reader) Err() error {
	return r.err
}

// Remaining reports unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) PutInt(v int) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		v = math.MaxInt32
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(int32(v)))
	w.buf.Write(b[:])
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func (w *Writer) PutString(s string) {
	w.PutInt(len(s))
	w.buf.WriteString(s)
}

func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}
