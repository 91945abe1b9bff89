// Package shader implements TileShader, the multi-zoom rasterizer that
// renders an arbitrary Web-Mercator viewport tile from a fogmap.FogMap into
// a caller-supplied RGBA8 pixel buffer.
//
// The renderer is a recursive three-level dispatch -- view to tile, tile to
// block, block to pixel -- parameterized on the log2 zoom difference
// between the requested viewport and the data pyramid's natural
// resolution, rather than three separately-typed recursions; each level
// picks between drawing a single max-pooled pixel (the view is smaller than
// one container's natural size) or recursing into the container's children
// (the view is larger). No floating point is used anywhere in this
// package.
package shader

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
)

// DataTileZoom is the web-mercator zoom level at which one data tile
// (8192x8192 logical pixels) exactly covers one viewport tile.
const DataTileZoom = 9

// ErrBufferTooSmall is returned when the caller-supplied buffer cannot hold
// a (2^bufferSizePower)^2 RGBA8 image.
var ErrBufferTooSmall = errors.New("shader: output buffer too small")

// ErrInvalidViewport is returned for a negative zoom or buffer size power.
var ErrInvalidViewport = errors.New("shader: invalid viewport parameters")

// Color is an RGBA8 pixel value. The core never blends colors: every
// output pixel ends up exactly bgColor or exactly fgColor.
type Color struct {
	R, G, B, A uint8
}

// Render writes viewport (viewX, viewY, zoom) of m into buf, which must be
// at least (2^bufferSizePower)^2 * 4 bytes, row-major RGBA8 with no
// padding (stride = 4 * width). Every pixel starts at bgColor; pixels whose
// corresponding data cell is visited (via max-pooling when the view is
// zoomed further out than the data's natural resolution) are overwritten
// with fgColor. A missing tile or block is not an error: it simply leaves
// the background in place.
func Render(m *fogmap.FogMap, viewX, viewY int64, zoom, bufferSizePower int, bg, fg Color, buf []byte) error {
	if zoom < 0 || bufferSizePower < 0 {
		return fmt.Errorf("%w: zoom=%d bufferSizePower=%d", ErrInvalidViewport, zoom, bufferSizePower)
	}

	width := int64(1) << uint(bufferSizePower)
	need := width * width * 4
	if int64(len(buf)) < need {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooSmall, need, len(buf))
	}

	fillBackground(buf[:need], bg)

	zoomDiff := int64(zoom) - DataTileZoom

	// When the view is zoomed in relative to the data pyramid's natural
	// resolution (Δ>0), one data tile spans many view tiles, so the
	// containing data tile index is viewX/Y shifted right by Δ; when zoomed
	// out (Δ<=0), the view spans (or is) a coarser region, so the data tile
	// index is shifted left by -Δ. This is the opposite direction from
	// every other shift below, which all move with increasing size_power.
	tileX, tileY := shr(viewX, zoomDiff), shr(viewY, zoomDiff)

	span := int64(1) << uint(maxI64(-zoomDiff, 0))
	zoomFactor := maxI64(zoomDiff, 0)
	tileWidthPower := zoomDiff + int64(bufferSizePower)
	sizePower := minI64(tileWidthPower, int64(bufferSizePower))

	var subTileX, subTileY int64
	if zoomFactor > 0 {
		mask := (int64(1) << uint(zoomFactor)) - 1
		subTileX, subTileY = viewX&mask, viewY&mask
	}

	for i := int64(0); i < span; i++ {
		for j := int64(0); j < span; j++ {
			tile, ok := m.GetTile(tileX+i, tileY+j)
			if !ok {
				continue
			}

			x0, y0 := shl(i, tileWidthPower), shl(j, tileWidthPower)
			renderTile(tile, buf, x0, y0, subTileX, subTileY, zoomFactor, sizePower, int64(bufferSizePower), fg)
		}
	}
	return nil
}

// renderTile draws the portion of tile visible at (startX, startY) in the
// output buffer. (subTileX, subTileY) selects the sub-region of the tile
// the view covers when zoomFactor > 0 (the view is a fraction of this
// tile); sizePower is the tile's on-screen size in this regime, in log2
// pixels.
func renderTile(tile *fogmap.Tile, buf []byte, startX, startY, subTileX, subTileY, zoomFactor, sizePower, bufferSizePower int64, fg Color) {
	if sizePower <= 0 {
		// The tile occupies at most one output pixel: max-pool over every
		// block it contains rather than accessing any one of them directly.
		if tile.HasAnyVisited() {
			drawPixel(buf, startX, startY, bufferSizePower, fg)
		}
		return
	}

	blockNumPower := fogmap.TileWidthOffset - zoomFactor
	blockStartX, blockStartY := shl(subTileX, blockNumPower), shl(subTileY, blockNumPower)

	blockZoomFactor := maxI64(0, -blockNumPower)
	var subBlockX, subBlockY int64
	if blockZoomFactor > 0 {
		mask := (int64(1) << uint(blockZoomFactor)) - 1
		subBlockX, subBlockY = subTileX&mask, subTileY&mask
	}

	blockWidthPower := sizePower - blockNumPower
	n := int64(1) << uint(maxI64(blockNumPower, 0))

	for i := int64(0); i < n; i++ {
		for j := int64(0); j < n; j++ {
			block, ok := tile.GetBlock(blockStartX+i, blockStartY+j)
			if !ok {
				continue
			}
			offsetX, offsetY := shl(i, blockWidthPower), shl(j, blockWidthPower)
			renderBlock(block, buf, startX+offsetX, startY+offsetY, subBlockX, subBlockY, blockZoomFactor, minI64(blockWidthPower, bufferSizePower), bufferSizePower, fg)
		}
	}
}

// renderBlock mirrors renderTile one level down: it draws the visible
// portion of block's 64x64 bitmap into the output buffer.
func renderBlock(block *fogmap.Block, buf []byte, startX, startY, subBlockX, subBlockY, zoomFactor, sizePower, bufferSizePower int64, fg Color) {
	if sizePower <= 0 {
		if block.HasAnyVisited() {
			drawPixel(buf, startX, startY, bufferSizePower, fg)
		}
		return
	}

	dotNumPower := fogmap.BitmapWidthOffset - zoomFactor
	dotStartX, dotStartY := shl(subBlockX, dotNumPower), shl(subBlockY, dotNumPower)

	blockDotWidthPower := sizePower - (fogmap.BitmapWidthOffset - zoomFactor)
	blockDotWidth := int64(1) << uint(maxI64(0, blockDotWidthPower))

	n := int64(1) << uint(maxI64(dotNumPower, 0))
	for i := int64(0); i < n; i++ {
		for j := int64(0); j < n; j++ {
			dotX, dotY := dotStartX+i, dotStartY+j
			if !block.IsVisited(dotX, dotY) {
				continue
			}
			offsetX, offsetY := shl(i, blockDotWidthPower), shl(j, blockDotWidthPower)
			drawRect(buf, startX+offsetX, startY+offsetY, blockDotWidth, blockDotWidth, bufferSizePower, fg)
		}
	}
}

func drawPixel(buf []byte, x, y, bufferSizePower int64, fg Color) {
	width := int64(1) << uint(bufferSizePower)
	if x < 0 || x >= width || y < 0 || y >= width {
		return
	}
	idx := (x + (y << uint(bufferSizePower))) * 4
	buf[idx] = fg.R
	buf[idx+1] = fg.G
	buf[idx+2] = fg.B
	buf[idx+3] = fg.A
}

func drawRect(buf []byte, x, y, w, h, bufferSizePower int64, fg Color) {
	for i := x; i < x+w; i++ {
		for j := y; j < y+h; j++ {
			drawPixel(buf, i, j, bufferSizePower, fg)
		}
	}
}

func fillBackground(buf []byte, bg Color) {
	for i := 0; i+4 <= len(buf); i += 4 {
		buf[i] = bg.R
		buf[i+1] = bg.G
		buf[i+2] = bg.B
		buf[i+3] = bg.A
	}
}

// shl shifts v left by n bits if n is non-negative, or right by -n bits
// otherwise -- the log-zoom arithmetic throughout this package moves in
// both directions depending on whether the viewport is zoomed in or out
// relative to the container being drawn.
func shl(v, n int64) int64 {
	if n >= 0 {
		return v << uint(n)
	}
	return v >> uint(-n)
}

// shr is shl's mirror image: shift right by n when n is non-negative, left
// by -n otherwise.
func shr(v, n int64) int64 {
	if n >= 0 {
		return v >> uint(n)
	}
	return v << uint(-n)
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
