package synthvid

import (
	"github.com/synthvid/synthvid/message"
)

// TileSize is the dirty tracking granularity in pixels.
const TileSize = 64

// DirtyTracker coalesces per pixel writes into a minimal set of tile
// aligned rectangles. Two shapes of dirty co-exist: a coarse full screen
// flag and a fine per tile bitmap, so the worst case (everything changed)
// never touches the bitmap. A new tracker starts full screen dirty, a
// geometry change always forces a complete repaint.
//
// The tracker is not internally locked, callers serialize access through
// the engine.
type DirtyTracker struct {
	width  uint32
	height uint32

	tilesX uint32
	tilesY uint32
	bitmap []byte

	fullScreen bool
}

func NewDirtyTracker(width, height uint32) *DirtyTracker {
	d := &DirtyTracker{
		width:  width,
		height: height,
	}
	if width == 0 || height == 0 {
		return d
	}

	d.tilesX = (width + TileSize - 1) / TileSize
	d.tilesY = (height + TileSize - 1) / TileSize
	d.bitmap = make([]byte, (d.tilesX*d.tilesY+7)/8)
	d.MarkFullScreen()
	return d
}

// MarkRegion marks every tile covered by the pixel rectangle as dirty,
// clamped to the grid. Without a bitmap it degrades to the full screen
// flag.
func (d *DirtyTracker) MarkRegion(x, y, width, height uint32) {
	if d.bitmap == nil {
		d.fullScreen = true
		return
	}

	startX := x / TileSize
	startY := y / TileSize
	endX := (x + width + TileSize - 1) / TileSize
	endY := (y + height + TileSize - 1) / TileSize

	if endX > d.tilesX {
		endX = d.tilesX
	}
	if endY > d.tilesY {
		endY = d.tilesY
	}

	for ty := startY; ty < endY; ty++ {
		for tx := startX; tx < endX; tx++ {
			bit := ty*d.tilesX + tx
			d.bitmap[bit/8] |= 1 << (bit % 8)
		}
	}
}

// MarkFullScreen sets the full screen flag and saturates the bitmap, kept
// consistent so a later dirtiness check stays correct even if the flag is
// cleared outside the normal clear path.
func (d *DirtyTracker) MarkFullScreen() {
	d.fullScreen = true
	for i := range d.bitmap {
		d.bitmap[i] = 0xff
	}
}

func (d *DirtyTracker) IsDirty() bool {
	if d.fullScreen {
		return true
	}
	if d.bitmap == nil {
		// no tracking, assume dirty
		return true
	}

	for _, b := range d.bitmap {
		if b != 0 {
			return true
		}
	}
	return false
}

func (d *DirtyTracker) dirtyTile(tx, ty uint32) bool {
	bit := ty*d.tilesX + tx
	return d.bitmap[bit/8]&(1<<(bit%8)) != 0
}

// BuildRectangles returns the current damage as at most maxRects pixel
// rectangles. Full screen damage, or a tracker without a bitmap, yields a
// single rectangle spanning the whole screen. Otherwise each tile row is
// scanned left to right and one rectangle is emitted per run of dirty
// tiles, with pixel bounds clamped to the screen. Runs are merged within a
// row only, never across rows.
func (d *DirtyTracker) BuildRectangles(maxRects int) []message.Rectangle {
	if maxRects < 1 {
		maxRects = 1
	}
	if d.fullScreen || d.bitmap == nil {
		return []message.Rectangle{{X2: int32(d.width), Y2: int32(d.height)}}
	}

	var rects []message.Rectangle
	for ty := uint32(0); ty < d.tilesY && len(rects) < maxRects; ty++ {
		runStart := int32(-1)

		for tx := uint32(0); tx <= d.tilesX; tx++ {
			dirty := tx < d.tilesX && d.dirtyTile(tx, ty)

			if dirty && runStart < 0 {
				runStart = int32(tx)
				continue
			}
			if dirty || runStart < 0 {
				continue
			}

			r := message.Rectangle{
				X1: runStart * TileSize,
				Y1: int32(ty) * TileSize,
				X2: int32(tx) * TileSize,
				Y2: int32(ty+1) * TileSize,
			}
			if r.X2 > int32(d.width) {
				r.X2 = int32(d.width)
			}
			if r.Y2 > int32(d.height) {
				r.Y2 = int32(d.height)
			}
			rects = append(rects, r)
			runStart = -1

			if len(rects) >= maxRects {
				break
			}
		}
	}

	return rects
}

// Clear wipes all dirty state. Only call after the rectangles produced by
// BuildRectangles were successfully transmitted.
func (d *DirtyTracker) Clear() {
	d.fullScreen = false
	for i := range d.bitmap {
		d.bitmap[i] = 0
	}
}
