package message

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Every message on the graphics channel is framed the same way: a pipe
// header, a graphics header, then a type-specific payload. Sizes in the
// graphics header cover the graphics header plus payload; the pipe header
// size repeats the graphics size. All fields are little-endian.
//
// 0                                31
// |---------------------------------|
// |        Pipe type (uint32)       |
// |        Pipe size (uint32)       |
// |---------------------------------|
// |      Message type (uint32)      |
// |      Message size (uint32)      |
// |---------------------------------|
// |            payload...           |

const (
	PipeHeaderLen = 8
	HeaderLen     = 8

	// PipeTypeData is the only pipe packet type carried on the graphics
	// channel.
	PipeTypeData uint32 = 1
)

type Type uint32

const (
	TypeError               Type = 0
	TypeVersionRequest      Type = 1
	TypeVersionResponse     Type = 2
	TypeVRAMLocation        Type = 3
	TypeVRAMAck             Type = 4
	TypeResolutionUpdate    Type = 5
	TypeResolutionUpdateAck Type = 6
	TypeCursorPosition      Type = 7
	TypeCursorShape         Type = 8
	TypeFeatureChange       Type = 9
	TypeImageUpdate         Type = 10
)

var typeMap = map[Type]string{
	TypeError:               "error",
	TypeVersionRequest:      "versionRequest",
	TypeVersionResponse:     "versionResponse",
	TypeVRAMLocation:        "vramLocation",
	TypeVRAMAck:             "vramAck",
	TypeResolutionUpdate:    "resolutionUpdate",
	TypeResolutionUpdateAck: "resolutionUpdateAck",
	TypeCursorPosition:      "cursorPosition",
	TypeCursorShape:         "cursorShape",
	TypeFeatureChange:       "featureChange",
	TypeImageUpdate:         "imageUpdate",
}

// TypeName will transform a graphics message type into a human string
func TypeName(t Type) string {
	if n, ok := typeMap[t]; ok {
		return n
	}

	return "unknown"
}

var (
	ErrHeaderTooShort  = errors.New("header is too short")
	ErrPayloadTooShort = errors.New("payload is too short")
	ErrNotDataPacket   = errors.New("pipe packet does not carry data")
)

// Header is the graphics message header shared by every message type.
type Header struct {
	Type Type
	Size uint32
}

func (h *Header) Parse(b []byte) error {
	if len(b) < HeaderLen {
		return ErrHeaderTooShort
	}
	h.Type = Type(binary.LittleEndian.Uint32(b[0:4]))
	h.Size = binary.LittleEndian.Uint32(b[4:8])
	return nil
}

func (h *Header) String() string {
	if h == nil {
		return "<nil>"
	}
	return fmt.Sprintf("type=%s size=%d", TypeName(h.Type), h.Size)
}

// Frame prepends the pipe and graphics headers to payload, producing a
// complete wire frame for a message of type t.
func Frame(t Type, payload []byte) []byte {
	size := uint32(HeaderLen + len(payload))
	b := make([]byte, PipeHeaderLen+size)
	binary.LittleEndian.PutUint32(b[0:4], PipeTypeData)
	binary.LittleEndian.PutUint32(b[4:8], size)
	binary.LittleEndian.PutUint32(b[8:12], uint32(t))
	binary.LittleEndian.PutUint32(b[12:16], size)
	copy(b[PipeHeaderLen+HeaderLen:], payload)
	return b
}

// StripPipe validates the pipe header of a received frame and returns the
// graphics message (header plus payload).
func StripPipe(b []byte) ([]byte, error) {
	if len(b) < PipeHeaderLen {
		return nil, ErrHeaderTooShort
	}
	if binary.LittleEndian.Uint32(b[0:4]) != PipeTypeData {
		return nil, ErrNotDataPacket
	}
	size := binary.LittleEndian.Uint32(b[4:8])
	if size < HeaderLen || int(size) > len(b)-PipeHeaderLen {
		return nil, ErrHeaderTooShort
	}
	return b[PipeHeaderLen : PipeHeaderLen+size], nil
}
