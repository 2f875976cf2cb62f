package message

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	b := (&VersionRequest{Version: Version3_5}).Encode()
	require.Len(t, b, PipeHeaderLen+HeaderLen+4)

	assert.Equal(t, PipeTypeData, binary.LittleEndian.Uint32(b[0:4]))
	assert.Equal(t, uint32(HeaderLen+4), binary.LittleEndian.Uint32(b[4:8]))

	msg, err := StripPipe(b)
	require.NoError(t, err)

	h := Header{}
	require.NoError(t, h.Parse(msg))
	assert.Equal(t, TypeVersionRequest, h.Type)
	assert.Equal(t, uint32(HeaderLen+4), h.Size)

	req := VersionRequest{}
	require.NoError(t, req.Parse(msg[HeaderLen:]))
	assert.Equal(t, Version3_5, req.Version)
}

func TestStripPipe(t *testing.T) {
	_, err := StripPipe([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrHeaderTooShort)

	// wrong pipe type
	b := (&VRAMAck{Context: 1}).Encode()
	binary.LittleEndian.PutUint32(b[0:4], 7)
	_, err = StripPipe(b)
	assert.ErrorIs(t, err, ErrNotDataPacket)

	// truncated frame
	b = (&VRAMAck{Context: 1}).Encode()
	_, err = StripPipe(b[:len(b)-1])
	assert.ErrorIs(t, err, ErrHeaderTooShort)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "imageUpdate", TypeName(TypeImageUpdate))
	assert.Equal(t, "unknown", TypeName(99))
}

func TestVersionPack(t *testing.T) {
	assert.Equal(t, uint32(0x0005_0003), Version3_5.Pack())
	assert.Equal(t, Version{3, 2}, UnpackVersion(Version3_2.Pack()))
	assert.Equal(t, "3.0", Version3_0.String())
}

func TestVersionTiers(t *testing.T) {
	w, h := Version3_0.MaxResolution()
	assert.Equal(t, uint32(1600), w)
	assert.Equal(t, uint32(1200), h)
	assert.Equal(t, uint32(16), Version3_0.BitDepth())

	w, h = Version3_2.MaxResolution()
	assert.Equal(t, uint32(3840), w)
	assert.Equal(t, uint32(2160), h)

	w, h = Version3_5.MaxResolution()
	assert.Equal(t, uint32(7680), w)
	assert.Equal(t, uint32(4320), h)
	assert.Equal(t, uint32(4), Version3_5.BytesPerPixel())

	// unknown versions get the current tier
	w, h = (Version{4, 0}).MaxResolution()
	assert.Equal(t, uint32(7680), w)
}

func TestVersionResponseRoundTrip(t *testing.T) {
	b := (&VersionResponse{Version: Version3_2, Accepted: true, MaxOutputs: 1}).Encode()
	msg, err := StripPipe(b)
	require.NoError(t, err)

	out := VersionResponse{}
	require.NoError(t, out.Parse(msg[HeaderLen:]))
	assert.True(t, out.Accepted)
	assert.Equal(t, Version3_2, out.Version)
	assert.Equal(t, uint8(1), out.MaxOutputs)
}

func TestResolutionUpdateRoundTrip(t *testing.T) {
	in := ResolutionUpdate{
		Context: 42,
		Outputs: []VideoOutput{{
			Active: true,
			Depth:  32,
			Width:  1920,
			Height: 1080,
			Pitch:  1920 * 4,
		}},
	}

	msg, err := StripPipe(in.Encode())
	require.NoError(t, err)

	out := ResolutionUpdate{}
	require.NoError(t, out.Parse(msg[HeaderLen:]))
	assert.Equal(t, in, out)
}

func TestImageUpdateRoundTrip(t *testing.T) {
	in := ImageUpdate{
		Output: 0,
		Rects: []Rectangle{
			{X1: 0, Y1: 0, X2: 64, Y2: 64},
			{X1: 128, Y1: 64, X2: 1920, Y2: 1080},
		},
	}

	msg, err := StripPipe(in.Encode())
	require.NoError(t, err)

	out := ImageUpdate{}
	require.NoError(t, out.Parse(msg[HeaderLen:]))
	assert.Equal(t, in, out)

	out = ImageUpdate{}
	assert.ErrorIs(t, out.Parse(msg[HeaderLen:HeaderLen+10]), ErrPayloadTooShort)
}

func TestFeatureChangeParse(t *testing.T) {
	msg, err := StripPipe((&FeatureChange{ImageUpdateNeeded: true, ResolutionUpdateNeeded: true}).Encode())
	require.NoError(t, err)

	fc := FeatureChange{}
	require.NoError(t, fc.Parse(msg[HeaderLen:]))
	assert.True(t, fc.ImageUpdateNeeded)
	assert.True(t, fc.ResolutionUpdateNeeded)
	assert.False(t, fc.CursorShapeNeeded)
	assert.False(t, fc.CursorPositionNeeded)
}
