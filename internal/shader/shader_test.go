package shader

import (
	"testing"

	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bg = Color{R: 0xFF, G: 0xFF, B: 0xFF, A: 0x00}
	fg = Color{R: 0x33, G: 0x88, B: 0xFF, A: 0xFF}
)

func pixelAt(buf []byte, x, y, width int64) Color {
	idx := (x + y*width) * 4
	return Color{R: buf[idx], G: buf[idx+1], B: buf[idx+2], A: buf[idx+3]}
}

func TestRender_RejectsNegativeParams(t *testing.T) {
	m := fogmap.New()
	buf := make([]byte, 4)
	assert.ErrorIs(t, Render(m, 0, 0, -1, 0, bg, fg, buf), ErrInvalidViewport)
	assert.ErrorIs(t, Render(m, 0, 0, 0, -1, bg, fg, buf), ErrInvalidViewport)
}

func TestRender_RejectsUndersizedBuffer(t *testing.T) {
	m := fogmap.New()
	buf := make([]byte, 3)
	assert.ErrorIs(t, Render(m, 0, 0, DataTileZoom, 0, bg, fg, buf), ErrBufferTooSmall)
}

func TestRender_EmptyMapIsAllBackground(t *testing.T) {
	m := fogmap.New()
	buf := make([]byte, 4)
	require.NoError(t, Render(m, 0, 0, DataTileZoom, 0, bg, fg, buf))
	assert.Equal(t, bg, pixelAt(buf, 0, 0, 1))
}

// At zoom == DataTileZoom with bufferSizePower == 0, the view collapses one
// entire data tile onto a single output pixel: any visited bit anywhere in
// the tile turns that pixel foreground.
func TestRender_CollapsedTileMaxPools(t *testing.T) {
	m := fogmap.New()
	require.NoError(t, m.AddLine(0, 0, 0, 0))

	var tileX, tileY int64
	var found bool
	m.Tiles(func(x, y int64, _ *fogmap.Tile) bool {
		tileX, tileY, found = x, y, true
		return false
	})
	require.True(t, found)

	// zoomDiff is 0 at zoom==DataTileZoom, so the view tile index equals the
	// data tile index directly.
	buf := make([]byte, 4)
	require.NoError(t, Render(m, tileX, tileY, DataTileZoom, 0, bg, fg, buf))
	assert.Equal(t, fg, pixelAt(buf, 0, 0, 1))
}

// At zoom == DataTileZoom and bufferSizePower == 3, the 8x8 output grid
// max-pools 16x16 groups of blocks per output pixel.
func TestRender_PartialZoomMaxPoolsPerBlockGroup(t *testing.T) {
	m := fogmap.New()

	// Force tile (0,0) to exist with a visited block at (20, 20): the
	// package has no exported tile-insertion path outside AddLine/import, so
	// route through SetImportedBlock with a hand-built block.
	block := fogmap.NewBlock()
	block.SetPoint(1, 1)
	m.SetImportedBlock(0, 0, 20, 20, block)

	buf := make([]byte, 8*8*4)
	require.NoError(t, Render(m, 0, 0, DataTileZoom, 3, bg, fg, buf))

	assert.Equal(t, fg, pixelAt(buf, 1, 1, 8), "block (20,20) falls in output pixel (20>>4, 20>>4)")
	assert.Equal(t, bg, pixelAt(buf, 0, 0, 8))
	assert.Equal(t, bg, pixelAt(buf, 7, 7, 8))
}

// At zoom = DataTileZoom + TileWidthOffset + 1 (Δ=8, past the sub-tile
// regime's Δ<=TileWidthOffset boundary), a single view renders a small
// quadrant of one block's own bitmap: individual visited dots, downsampled,
// not a single max-pooled color for the whole block.
func TestRender_DeepZoomRendersIndividualDots(t *testing.T) {
	m := fogmap.New()

	block := fogmap.NewBlock()
	block.SetPoint(0, 0)
	block.SetPoint(31, 31)
	m.SetImportedBlock(0, 0, 0, 0, block)

	const zoom = DataTileZoom + fogmap.TileWidthOffset + 1
	buf := make([]byte, 4*4*4)
	require.NoError(t, Render(m, 0, 0, zoom, 2, bg, fg, buf))

	assert.Equal(t, fg, pixelAt(buf, 0, 0, 4), "dot (0,0) maps to output pixel (0,0)")
	assert.Equal(t, fg, pixelAt(buf, 3, 3, 4), "dot (31,31) maps to output pixel (31>>3, 31>>3)")
	assert.Equal(t, bg, pixelAt(buf, 0, 3, 4))
	assert.Equal(t, bg, pixelAt(buf, 3, 0, 4))
}

func TestRender_ZoomedOutRegimeCoversManyDataTiles(t *testing.T) {
	m := fogmap.New()
	block := fogmap.NewBlock()
	block.SetPoint(0, 0)
	m.SetImportedBlock(3, 3, 0, 0, block)

	buf := make([]byte, 16*16*4)
	require.NoError(t, Render(m, 0, 0, DataTileZoom-4, 4, bg, fg, buf))

	any := false
	for i := 0; i < len(buf); i += 4 {
		if buf[i] == fg.R && buf[i+1] == fg.G && buf[i+2] == fg.B && buf[i+3] == fg.A {
			any = true
			break
		}
	}
	assert.True(t, any, "the visited tile must surface somewhere in a zoomed-out render")
}
