package fogmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTile_GetOrInsertBlock(t *testing.T) {
	tile := NewTile()
	_, ok := tile.GetBlock(0, 0)
	assert.False(t, ok)

	b := tile.GetOrInsertBlock(2, 3)
	require.NotNil(t, b)
	assert.Equal(t, 1, tile.BlockCount())

	b2, ok := tile.GetBlock(2, 3)
	require.True(t, ok)
	assert.Same(t, b, b2)
}

func TestTile_HasAnyVisited(t *testing.T) {
	tile := NewTile()
	assert.False(t, tile.HasAnyVisited())

	tile.GetOrInsertBlock(0, 0) // created but empty
	assert.False(t, tile.HasAnyVisited())

	tile.GetOrInsertBlock(1, 1).SetPoint(5, 5)
	assert.True(t, tile.HasAnyVisited())
}

func TestTile_SetBlockOverwrites(t *testing.T) {
	tile := NewTile()
	tile.GetOrInsertBlock(0, 0).SetPoint(0, 0)

	replacement := NewBlock()
	replacement.SetPoint(10, 10)
	tile.setBlock(0, 0, replacement)

	b, ok := tile.GetBlock(0, 0)
	require.True(t, ok)
	assert.False(t, b.IsVisited(0, 0))
	assert.True(t, b.IsVisited(10, 10))
	assert.Equal(t, 1, tile.BlockCount())
}

func TestTile_AddLineCrossesBlockBoundary(t *testing.T) {
	tile := NewTile()
	// A horizontal line spanning two blocks: local tile coords 60..70, y=0.
	// dx0=10, x-dominant, errTerm=2*0-10=-10.
	end := int64(70)
	x, y, _ := tile.AddLine(60, 0, end, -10, 10, 0, true, true)
	assert.Equal(t, end, x)
	assert.Equal(t, int64(0), y)

	// Block (0,0) should have the tail of pixels 60..63, block (1,0) the rest.
	b0, ok := tile.GetBlock(0, 0)
	require.True(t, ok)
	assert.True(t, b0.IsVisited(60, 0))
	assert.True(t, b0.IsVisited(63, 0))

	b1, ok := tile.GetBlock(1, 0)
	require.True(t, ok)
	assert.True(t, b1.IsVisited(0, 0))
	assert.True(t, b1.IsVisited(5, 0)) // local end x=70-64=6, so 0..6 are set, endpoint included
}

func TestTile_AddLineStopsAtTileBoundary(t *testing.T) {
	tile := NewTile()
	// end far beyond tile width; loop must break rather than run forever.
	x, _, _ := tile.AddLine(0, 0, TileWidth*BitmapWidth+100, -10, 10, 0, true, true)
	assert.True(t, x >= TileWidth*BitmapWidth)
}
