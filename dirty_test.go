package synthvid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synthvid/synthvid/message"
)

func TestDirtyTracker_StartsFullScreen(t *testing.T) {
	d := NewDirtyTracker(1920, 1080)
	assert.True(t, d.IsDirty())

	rects := d.BuildRectangles(10)
	require.Len(t, rects, 1)
	assert.Equal(t, message.Rectangle{X1: 0, Y1: 0, X2: 1920, Y2: 1080}, rects[0])
}

func TestDirtyTracker_ClearIsIdempotent(t *testing.T) {
	d := NewDirtyTracker(1920, 1080)

	d.Clear()
	assert.False(t, d.IsDirty())

	d.Clear()
	assert.False(t, d.IsDirty())
}

func TestDirtyTracker_MarkRegion(t *testing.T) {
	d := NewDirtyTracker(1920, 1080)
	d.Clear()

	// 100,100 50x50 lands in tiles (1,1) through (2,2)
	d.MarkRegion(100, 100, 50, 50)
	assert.True(t, d.IsDirty())

	assert.False(t, d.dirtyTile(0, 0))
	assert.True(t, d.dirtyTile(1, 1))
	assert.True(t, d.dirtyTile(2, 1))
	assert.True(t, d.dirtyTile(1, 2))
	assert.True(t, d.dirtyTile(2, 2))
	assert.False(t, d.dirtyTile(3, 2))

	rects := d.BuildRectangles(10)
	require.NotEmpty(t, rects)
	covered := func(x, y int32) bool {
		for _, r := range rects {
			if x >= r.X1 && x < r.X2 && y >= r.Y1 && y < r.Y2 {
				return true
			}
		}
		return false
	}
	// the marked region is covered, rectangles stay inside the screen
	assert.True(t, covered(100, 100))
	assert.True(t, covered(149, 149))
	for _, r := range rects {
		assert.GreaterOrEqual(t, r.X1, int32(0))
		assert.GreaterOrEqual(t, r.Y1, int32(0))
		assert.LessOrEqual(t, r.X2, int32(1920))
		assert.LessOrEqual(t, r.Y2, int32(1080))
	}
}

func TestDirtyTracker_MarkRegionClamps(t *testing.T) {
	d := NewDirtyTracker(1920, 1080)
	d.Clear()

	// past the right and bottom edge, must not panic or mark out of grid
	d.MarkRegion(1900, 1070, 500, 500)
	assert.True(t, d.IsDirty())

	rects := d.BuildRectangles(10)
	for _, r := range rects {
		assert.LessOrEqual(t, r.X2, int32(1920))
		assert.LessOrEqual(t, r.Y2, int32(1080))
	}
}

func TestDirtyTracker_RowRunsMerge(t *testing.T) {
	d := NewDirtyTracker(1920, 1080)
	d.Clear()

	// two separate runs on tile row 0: tiles 0-1 and tile 4
	d.MarkRegion(0, 0, 128, 64)
	d.MarkRegion(256, 0, 64, 64)

	rects := d.BuildRectangles(10)
	require.Len(t, rects, 2)
	assert.Equal(t, message.Rectangle{X1: 0, Y1: 0, X2: 128, Y2: 64}, rects[0])
	assert.Equal(t, message.Rectangle{X1: 256, Y1: 0, X2: 320, Y2: 64}, rects[1])
}

func TestDirtyTracker_NoCrossRowMerge(t *testing.T) {
	d := NewDirtyTracker(1920, 1080)
	d.Clear()

	// identical runs on two adjacent rows stay two rectangles
	d.MarkRegion(0, 0, 64, 128)
	rects := d.BuildRectangles(10)
	require.Len(t, rects, 2)
	assert.Equal(t, int32(0), rects[0].Y1)
	assert.Equal(t, int32(64), rects[1].Y1)
}

func TestDirtyTracker_MaxRects(t *testing.T) {
	d := NewDirtyTracker(1920, 1080)
	d.MarkFullScreen()
	d.fullScreen = false // force the bitmap path

	// saturated bitmap produces one run per row, capped by maxRects
	rects := d.BuildRectangles(3)
	assert.Len(t, rects, 3)
}

func TestDirtyTracker_FullScreenRoundTrip(t *testing.T) {
	d := NewDirtyTracker(1920, 1080)
	d.Clear()

	d.MarkRegion(0, 0, 1920, 1080)
	assert.True(t, d.IsDirty())

	// per row runs with no gaps, unioning to exactly the full screen
	rects := d.BuildRectangles(100)
	var area int64
	for _, r := range rects {
		area += int64(r.X2-r.X1) * int64(r.Y2-r.Y1)
	}
	assert.Equal(t, int64(1920)*1080, area)

	d.Clear()
	assert.False(t, d.IsDirty())
}

func TestDirtyTracker_FullScreenFlagBeatsBitmap(t *testing.T) {
	d := NewDirtyTracker(1920, 1080)
	d.Clear()

	d.MarkFullScreen()
	// even if the flag is cleared outside the normal path, the saturated
	// bitmap keeps the tracker dirty
	d.fullScreen = false
	assert.True(t, d.IsDirty())
}

func TestDirtyTracker_NoBitmapFailsafe(t *testing.T) {
	d := NewDirtyTracker(0, 0)
	assert.Nil(t, d.bitmap)

	// no tracking, assume dirty
	assert.True(t, d.IsDirty())

	d.MarkRegion(10, 10, 5, 5)
	assert.True(t, d.fullScreen)

	rects := d.BuildRectangles(10)
	require.Len(t, rects, 1)
}

func TestDirtyTracker_TileGridDimensions(t *testing.T) {
	d := NewDirtyTracker(1920, 1080)
	assert.Equal(t, uint32(30), d.tilesX)
	assert.Equal(t, uint32(17), d.tilesY)

	// non multiples round up
	d = NewDirtyTracker(1000, 700)
	assert.Equal(t, uint32(16), d.tilesX)
	assert.Equal(t, uint32(11), d.tilesY)
}
