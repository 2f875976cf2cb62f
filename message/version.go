package message

import "fmt"

// Version is a negotiated protocol version pair. On the wire it is packed
// into a uint32 with the minor in the upper half.
type Version struct {
	Major uint16
	Minor uint16
}

var (
	// Version3_0 is the original protocol revision, limited to a legacy
	// bit depth and small mode ceiling.
	Version3_0 = Version{3, 0}
	Version3_2 = Version{3, 2}
	// Version3_5 is the current protocol revision.
	Version3_5 = Version{3, 5}
)

func (v Version) Pack() uint32 {
	return uint32(v.Major) | uint32(v.Minor)<<16
}

func UnpackVersion(p uint32) Version {
	return Version{Major: uint16(p & 0xffff), Minor: uint16(p >> 16)}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

const (
	// MinWidth and MinHeight form the resolution floor for every protocol
	// revision.
	MinWidth  = 640
	MinHeight = 480

	maxWidth3_0  = 1600
	maxHeight3_0 = 1200
	maxWidth3_2  = 3840
	maxHeight3_2 = 2160
	maxWidth3_5  = 7680
	maxHeight3_5 = 4320

	bitDepthLegacy = 16
	bitDepth       = 32
)

// MaxResolution returns the mode ceiling for the version. Exactly one tier
// applies per version, unknown versions get the current tier.
func (v Version) MaxResolution() (width, height uint32) {
	switch v {
	case Version3_0:
		return maxWidth3_0, maxHeight3_0
	case Version3_2:
		return maxWidth3_2, maxHeight3_2
	default:
		return maxWidth3_5, maxHeight3_5
	}
}

// BitDepth returns the framebuffer depth in bits implied by the version,
// modes do not carry their own depth.
func (v Version) BitDepth() uint32 {
	if v == Version3_0 {
		return bitDepthLegacy
	}
	return bitDepth
}

// BytesPerPixel is BitDepth in bytes.
func (v Version) BytesPerPixel() uint32 {
	return v.BitDepth() / 8
}
