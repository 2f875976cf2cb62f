package message

import "encoding/binary"

const (
	// CursorMaxWidth and CursorMaxHeight bound cursor shape dimensions for
	// every protocol revision.
	CursorMaxWidth  = 96
	CursorMaxHeight = 96

	// CursorPixelSize is the size of one ARGB cursor pixel.
	CursorPixelSize = 4

	// CursorMaxSize bounds the cursor pixel payload.
	CursorMaxSize = CursorMaxWidth * CursorMaxHeight * CursorPixelSize

	// CursorPartComplete marks a cursor shape message carrying the whole
	// image, partial transfers are never sent.
	CursorPartComplete = 0xff
)

// MaxUpdateRects is the most rectangles a single ImageUpdate can carry.
const MaxUpdateRects = 255

type VersionRequest struct {
	Version Version
}

func (m *VersionRequest) Encode() []byte {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[0:4], m.Version.Pack())
	return Frame(TypeVersionRequest, p[:])
}

func (m *VersionRequest) Parse(b []byte) error {
	if len(b) < 4 {
		return ErrPayloadTooShort
	}
	m.Version = UnpackVersion(binary.LittleEndian.Uint32(b[0:4]))
	return nil
}

type VersionResponse struct {
	Version    Version
	Accepted   bool
	MaxOutputs uint8
}

func (m *VersionResponse) Encode() []byte {
	var p [6]byte
	binary.LittleEndian.PutUint32(p[0:4], m.Version.Pack())
	if m.Accepted {
		p[4] = 1
	}
	p[5] = m.MaxOutputs
	return Frame(TypeVersionResponse, p[:])
}

func (m *VersionResponse) Parse(b []byte) error {
	if len(b) < 6 {
		return ErrPayloadTooShort
	}
	m.Version = UnpackVersion(binary.LittleEndian.Uint32(b[0:4]))
	m.Accepted = b[4] != 0
	m.MaxOutputs = b[5]
	return nil
}

// VRAMLocation announces the guest physical region backing the
// framebuffer. Context is a caller-chosen correlation token echoed back in
// the ack.
type VRAMLocation struct {
	Context      uint64
	GPASpecified bool
	GPA          uint64
}

func (m *VRAMLocation) Encode() []byte {
	var p [17]byte
	binary.LittleEndian.PutUint64(p[0:8], m.Context)
	if m.GPASpecified {
		p[8] = 1
	}
	binary.LittleEndian.PutUint64(p[9:17], m.GPA)
	return Frame(TypeVRAMLocation, p[:])
}

func (m *VRAMLocation) Parse(b []byte) error {
	if len(b) < 17 {
		return ErrPayloadTooShort
	}
	m.Context = binary.LittleEndian.Uint64(b[0:8])
	m.GPASpecified = b[8] != 0
	m.GPA = binary.LittleEndian.Uint64(b[9:17])
	return nil
}

type VRAMAck struct {
	Context uint64
}

func (m *VRAMAck) Encode() []byte {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[0:8], m.Context)
	return Frame(TypeVRAMAck, p[:])
}

func (m *VRAMAck) Parse(b []byte) error {
	if len(b) < 8 {
		return ErrPayloadTooShort
	}
	m.Context = binary.LittleEndian.Uint64(b[0:8])
	return nil
}

// VideoOutput describes one display surface within a ResolutionUpdate.
type VideoOutput struct {
	Active     bool
	VRAMOffset uint32
	Depth      uint8
	Width      uint32
	Height     uint32
	Pitch      uint32
}

const videoOutputLen = 18

func (o *VideoOutput) encode(p []byte) {
	if o.Active {
		p[0] = 1
	} else {
		p[0] = 0
	}
	binary.LittleEndian.PutUint32(p[1:5], o.VRAMOffset)
	p[5] = o.Depth
	binary.LittleEndian.PutUint32(p[6:10], o.Width)
	binary.LittleEndian.PutUint32(p[10:14], o.Height)
	binary.LittleEndian.PutUint32(p[14:18], o.Pitch)
}

func (o *VideoOutput) parse(p []byte) {
	o.Active = p[0] != 0
	o.VRAMOffset = binary.LittleEndian.Uint32(p[1:5])
	o.Depth = p[5]
	o.Width = binary.LittleEndian.Uint32(p[6:10])
	o.Height = binary.LittleEndian.Uint32(p[10:14])
	o.Pitch = binary.LittleEndian.Uint32(p[14:18])
}

type ResolutionUpdate struct {
	Context uint64
	Outputs []VideoOutput
}

func (m *ResolutionUpdate) Encode() []byte {
	p := make([]byte, 9+videoOutputLen*len(m.Outputs))
	binary.LittleEndian.PutUint64(p[0:8], m.Context)
	p[8] = uint8(len(m.Outputs))
	for i := range m.Outputs {
		m.Outputs[i].encode(p[9+i*videoOutputLen:])
	}
	return Frame(TypeResolutionUpdate, p)
}

func (m *ResolutionUpdate) Parse(b []byte) error {
	if len(b) < 9 {
		return ErrPayloadTooShort
	}
	m.Context = binary.LittleEndian.Uint64(b[0:8])
	count := int(b[8])
	if len(b) < 9+count*videoOutputLen {
		return ErrPayloadTooShort
	}
	m.Outputs = make([]VideoOutput, count)
	for i := 0; i < count; i++ {
		m.Outputs[i].parse(b[9+i*videoOutputLen:])
	}
	return nil
}

type ResolutionUpdateAck struct {
	Context uint64
}

func (m *ResolutionUpdateAck) Encode() []byte {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[0:8], m.Context)
	return Frame(TypeResolutionUpdateAck, p[:])
}

func (m *ResolutionUpdateAck) Parse(b []byte) error {
	if len(b) < 8 {
		return ErrPayloadTooShort
	}
	m.Context = binary.LittleEndian.Uint64(b[0:8])
	return nil
}

type CursorPosition struct {
	Visible bool
	Output  uint8
	X       int32
	Y       int32
}

func (m *CursorPosition) Encode() []byte {
	var p [10]byte
	if m.Visible {
		p[0] = 1
	}
	p[1] = m.Output
	binary.LittleEndian.PutUint32(p[2:6], uint32(m.X))
	binary.LittleEndian.PutUint32(p[6:10], uint32(m.Y))
	return Frame(TypeCursorPosition, p[:])
}

func (m *CursorPosition) Parse(b []byte) error {
	if len(b) < 10 {
		return ErrPayloadTooShort
	}
	m.Visible = b[0] != 0
	m.Output = b[1]
	m.X = int32(binary.LittleEndian.Uint32(b[2:6]))
	m.Y = int32(binary.LittleEndian.Uint32(b[6:10]))
	return nil
}

type CursorShape struct {
	PartIndex uint8
	ARGB      bool
	Width     uint32
	Height    uint32
	HotX      uint32
	HotY      uint32
	Data      []byte
}

func (m *CursorShape) Encode() []byte {
	p := make([]byte, 18+len(m.Data))
	p[0] = m.PartIndex
	if m.ARGB {
		p[1] = 1
	}
	binary.LittleEndian.PutUint32(p[2:6], m.Width)
	binary.LittleEndian.PutUint32(p[6:10], m.Height)
	binary.LittleEndian.PutUint32(p[10:14], m.HotX)
	binary.LittleEndian.PutUint32(p[14:18], m.HotY)
	copy(p[18:], m.Data)
	return Frame(TypeCursorShape, p)
}

func (m *CursorShape) Parse(b []byte) error {
	if len(b) < 18 {
		return ErrPayloadTooShort
	}
	m.PartIndex = b[0]
	m.ARGB = b[1] != 0
	m.Width = binary.LittleEndian.Uint32(b[2:6])
	m.Height = binary.LittleEndian.Uint32(b[6:10])
	m.HotX = binary.LittleEndian.Uint32(b[10:14])
	m.HotY = binary.LittleEndian.Uint32(b[14:18])
	m.Data = b[18:]
	return nil
}

// FeatureChange is the unsolicited "I lost state, resend it" notification.
// Each flag independently requests a retransmission of retained state.
type FeatureChange struct {
	ImageUpdateNeeded      bool
	CursorShapeNeeded      bool
	CursorPositionNeeded   bool
	ResolutionUpdateNeeded bool
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func (m *FeatureChange) Encode() []byte {
	p := [4]byte{
		boolByte(m.ImageUpdateNeeded),
		boolByte(m.CursorShapeNeeded),
		boolByte(m.CursorPositionNeeded),
		boolByte(m.ResolutionUpdateNeeded),
	}
	return Frame(TypeFeatureChange, p[:])
}

func (m *FeatureChange) Parse(b []byte) error {
	if len(b) < 4 {
		return ErrPayloadTooShort
	}
	m.ImageUpdateNeeded = b[0] != 0
	m.CursorShapeNeeded = b[1] != 0
	m.CursorPositionNeeded = b[2] != 0
	m.ResolutionUpdateNeeded = b[3] != 0
	return nil
}

// Rectangle is a half-open pixel region [X1,X2)x[Y1,Y2) within the
// framebuffer.
type Rectangle struct {
	X1, Y1, X2, Y2 int32
}

const rectangleLen = 16

type ImageUpdate struct {
	Output uint8
	Rects  []Rectangle
}

func (m *ImageUpdate) Encode() []byte {
	p := make([]byte, 2+rectangleLen*len(m.Rects))
	p[0] = m.Output
	p[1] = uint8(len(m.Rects))
	for i, r := range m.Rects {
		o := 2 + i*rectangleLen
		binary.LittleEndian.PutUint32(p[o:o+4], uint32(r.X1))
		binary.LittleEndian.PutUint32(p[o+4:o+8], uint32(r.Y1))
		binary.LittleEndian.PutUint32(p[o+8:o+12], uint32(r.X2))
		binary.LittleEndian.PutUint32(p[o+12:o+16], uint32(r.Y2))
	}
	return Frame(TypeImageUpdate, p)
}

func (m *ImageUpdate) Parse(b []byte) error {
	if len(b) < 2 {
		return ErrPayloadTooShort
	}
	m.Output = b[0]
	count := int(b[1])
	if len(b) < 2+count*rectangleLen {
		return ErrPayloadTooShort
	}
	m.Rects = make([]Rectangle, count)
	for i := range m.Rects {
		o := 2 + i*rectangleLen
		m.Rects[i] = Rectangle{
			X1: int32(binary.LittleEndian.Uint32(b[o : o+4])),
			Y1: int32(binary.LittleEndian.Uint32(b[o+4 : o+8])),
			X2: int32(binary.LittleEndian.Uint32(b[o+8 : o+12])),
			Y2: int32(binary.LittleEndian.Uint32(b[o+12 : o+16])),
		}
	}
	return nil
}
