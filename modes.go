package synthvid

import (
	"fmt"

	"github.com/synthvid/synthvid/message"
)

// Mode is a displayable resolution. Bit depth is derived from the
// negotiated protocol version, not stored per mode.
type Mode struct {
	Width  uint32
	Height uint32
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// FallbackMode is the single synthesized mode emitted when nothing else
// fits, callers never observe an empty catalog.
var FallbackMode = Mode{1024, 768}

// standardModes is the internal table used when no candidate list is
// supplied, ordered smallest to largest.
var standardModes = []Mode{
	{640, 480}, {800, 600}, {1024, 768}, {1152, 864},
	{1280, 720}, {1280, 1024}, {1366, 768}, {1440, 900},
	{1600, 900}, {1600, 1200}, {1680, 1050}, {1920, 1080},
	{1920, 1200}, {2560, 1440}, {3840, 2160}, {5120, 2880},
	{7680, 4320},
}

// checkMode validates a resolution against the protocol floor, the
// version ceiling and the VRAM capacity, in that order.
func checkMode(v message.Version, vramBytes uint64, width, height uint32) error {
	if width < message.MinWidth || height < message.MinHeight {
		return fmt.Errorf("%dx%d below minimum %dx%d: %w",
			width, height, message.MinWidth, message.MinHeight, ErrBadArgument)
	}

	maxW, maxH := v.MaxResolution()
	if width > maxW || height > maxH {
		return fmt.Errorf("%dx%d exceeds version %s maximum %dx%d: %w",
			width, height, v, maxW, maxH, ErrBadArgument)
	}

	required := uint64(width) * uint64(height) * uint64(v.BytesPerPixel())
	if required > vramBytes {
		return fmt.Errorf("%dx%dx%d requires %d bytes, %d available: %w",
			width, height, v.BitDepth(), required, vramBytes, ErrCapacity)
	}
	return nil
}

func filterModes(v message.Version, vramBytes uint64, candidates []Mode) []Mode {
	out := make([]Mode, 0, len(candidates))
	for _, m := range candidates {
		if checkMode(v, vramBytes, m.Width, m.Height) == nil {
			out = append(out, m)
		}
	}
	return out
}

// BuildModeCatalog derives the ordered list of valid modes for the
// negotiated version and VRAM length. Candidates are filtered in input
// order; with no candidates, or none surviving the filter, the standard
// table is filtered instead; should that also come up empty the fallback
// mode is emitted regardless of fit. The first entry is the preferred
// mode. The result is never empty.
func BuildModeCatalog(v message.Version, vramBytes uint64, candidates []Mode) []Mode {
	if len(candidates) > 0 {
		if modes := filterModes(v, vramBytes, candidates); len(modes) > 0 {
			return modes
		}
	}

	if modes := filterModes(v, vramBytes, standardModes); len(modes) > 0 {
		return modes
	}

	return []Mode{FallbackMode}
}
