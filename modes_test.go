package synthvid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synthvid/synthvid/message"
)

func TestCheckMode(t *testing.T) {
	vram := uint64(32 * 1024 * 1024)

	assert.NoError(t, checkMode(message.Version3_5, vram, 1920, 1080))

	// protocol floor
	assert.ErrorIs(t, checkMode(message.Version3_5, vram, 639, 480), ErrBadArgument)
	assert.ErrorIs(t, checkMode(message.Version3_5, vram, 640, 479), ErrBadArgument)

	// version ceilings
	assert.ErrorIs(t, checkMode(message.Version3_0, vram, 1920, 1080), ErrBadArgument)
	assert.NoError(t, checkMode(message.Version3_0, vram, 1600, 1200))
	assert.ErrorIs(t, checkMode(message.Version3_2, vram, 5120, 2880), ErrBadArgument)
	assert.NoError(t, checkMode(message.Version3_5, vram, 3840, 2160))

	// capacity is a distinct outcome
	err := checkMode(message.Version3_5, 8_294_400, 3840, 2160)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.NotErrorIs(t, err, ErrBadArgument)
}

func TestBuildModeCatalog_FiltersCandidates(t *testing.T) {
	// exactly 1920x1080x32bpp
	vram := uint64(8_294_400)
	candidates := []Mode{{1920, 1080}, {3840, 2160}}

	modes := BuildModeCatalog(message.Version3_2, vram, candidates)
	assert.Equal(t, []Mode{{1920, 1080}}, modes)
}

func TestBuildModeCatalog_PreservesOrder(t *testing.T) {
	vram := uint64(64 * 1024 * 1024)
	candidates := []Mode{{1920, 1080}, {1280, 720}, {800, 600}}

	modes := BuildModeCatalog(message.Version3_5, vram, candidates)
	assert.Equal(t, candidates, modes)
}

func TestBuildModeCatalog_StandardFallback(t *testing.T) {
	vram := uint64(64 * 1024 * 1024)

	// no candidate list falls back to the standard table
	modes := BuildModeCatalog(message.Version3_5, vram, nil)
	require.NotEmpty(t, modes)
	assert.Equal(t, Mode{640, 480}, modes[0])

	// all candidates filtered out also falls back
	modes = BuildModeCatalog(message.Version3_5, vram, []Mode{{100, 100}})
	require.NotEmpty(t, modes)
	assert.Equal(t, Mode{640, 480}, modes[0])
}

func TestBuildModeCatalog_VersionCeilingTrims(t *testing.T) {
	vram := uint64(1 << 40)

	modes := BuildModeCatalog(message.Version3_0, vram, nil)
	for _, m := range modes {
		assert.LessOrEqual(t, m.Width, uint32(1600))
		assert.LessOrEqual(t, m.Height, uint32(1200))
	}

	modes = BuildModeCatalog(message.Version3_5, vram, nil)
	assert.Contains(t, modes, Mode{7680, 4320})
}

func TestBuildModeCatalog_NeverEmpty(t *testing.T) {
	// VRAM below the smallest mode's footprint still yields the fallback
	modes := BuildModeCatalog(message.Version3_5, 0, nil)
	assert.Equal(t, []Mode{FallbackMode}, modes)

	modes = BuildModeCatalog(message.Version3_5, 0, []Mode{{1920, 1080}})
	assert.Equal(t, []Mode{FallbackMode}, modes)
}

func TestBuildModeCatalog_LegacyDepthChangesFootprint(t *testing.T) {
	// 1600x1200 fits at 16bpp but not at 32bpp
	vram := uint64(1600 * 1200 * 2)

	assert.NoError(t, checkMode(message.Version3_0, vram, 1600, 1200))
	assert.ErrorIs(t, checkMode(message.Version3_2, vram, 1600, 1200), ErrCapacity)
}
