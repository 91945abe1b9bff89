package fogmap

// Tile is a sparse 128x128 grid of Blocks keyed by (block_x, block_y).
// Storage is an index array of TileWidth*TileWidth slots mapping a slot to
// a position in a dense, append-only block pool; -1 means absent. This
// trades 64KiB of index per tile (4 bytes * 16384 slots) for O(1) lookup
// without hashing on every pixel access. Blocks are created lazily on
// first write and persist for the Tile's lifetime; Tile owns its Blocks
// exclusively.
type Tile struct {
	blockIndex [TileWidth * TileWidth]int32
	blocks     []*Block
}

// NewTile returns an empty tile (no blocks allocated).
func NewTile() *Tile {
	t := &Tile{}
	for i := range t.blockIndex {
		t.blockIndex[i] = -1
	}
	return t
}

func blockSlot(x, y int64) int64 {
	return (x << TileWidthOffset) + y
}

// GetBlock returns the block at (x, y), or false if it has never been
// written.
func (t *Tile) GetBlock(x, y int64) (*Block, bool) {
	idx := t.blockIndex[blockSlot(x, y)]
	if idx < 0 {
		return nil, false
	}
	return t.blocks[idx], true
}

// GetOrInsertBlock returns the block at (x, y), creating it empty first if
// necessary.
func (t *Tile) GetOrInsertBlock(x, y int64) *Block {
	slot := blockSlot(x, y)
	idx := t.blockIndex[slot]
	if idx < 0 {
		idx = int32(len(t.blocks))
		t.blockIndex[slot] = idx
		t.blocks = append(t.blocks, NewBlock())
	}
	return t.blocks[idx]
}

// setBlock installs block at (x, y), overwriting anything already there.
// Used only by FogMap.SetImportedBlock (the import and snapshot-load write
// path), whose overwrite semantics are documented as a deliberate divergence
// from AddLine's purely-additive contract.
func (t *Tile) setBlock(x, y int64, block *Block) {
	slot := blockSlot(x, y)
	idx := t.blockIndex[slot]
	if idx < 0 {
		t.blockIndex[slot] = int32(len(t.blocks))
		t.blocks = append(t.blocks, block)
		return
	}
	t.blocks[idx] = block
}

// HasAnyVisited reports whether any block in the tile has a visited pixel.
// Used by the shader's max-pooling rule when a whole tile collapses to a
// single output pixel.
func (t *Tile) HasAnyVisited() bool {
	for _, idx := range t.blockIndex {
		if idx >= 0 && t.blocks[idx].HasAnyVisited() {
			return true
		}
	}
	return false
}

// BlockCount returns the number of blocks that have ever been written to.
func (t *Tile) BlockCount() int {
	return len(t.blocks)
}

// Blocks calls fn for every present block. Iteration order is unspecified.
// fn returning false stops iteration early.
func (t *Tile) Blocks(fn func(x, y int64, b *Block) bool) {
	for slot, idx := range t.blockIndex {
		if idx < 0 {
			continue
		}
		x := int64(slot) >> TileWidthOffset
		y := int64(slot) & (TileWidth - 1)
		if !fn(x, y, t.blocks[idx]) {
			return
		}
	}
}

// AddLine dispatches Bresenham rasterization into the constituent blocks of
// this tile. x, y, end are in this tile's local [0, 8192) coordinate frame;
// errTerm/dx0/dy0/xDominant/positiveSlope carry the same meaning as
// Block.Rasterize. It repeatedly identifies the enclosing block, rebases
// coordinates into that block's [0, 64) frame, delegates, and resumes with
// the block's continuation state -- terminating when the dominant axis
// reaches end or either axis leaves [0, TileWidth*BitmapWidth).
func (t *Tile) AddLine(x, y, end, errTerm, dx0, dy0 int64, xDominant, positiveSlope bool) (int64, int64, int64) {
	if xDominant {
		for x < end {
			blockX, blockY := x>>BitmapWidthOffset, y>>BitmapWidthOffset
			if blockX >= TileWidth || blockY < 0 || blockY >= TileWidth {
				break
			}
			block := t.GetOrInsertBlock(blockX, blockY)
			x, y, errTerm = block.Rasterize(
				x-(blockX<<BitmapWidthOffset),
				y-(blockY<<BitmapWidthOffset),
				end-(blockX<<BitmapWidthOffset),
				errTerm, dx0, dy0, true, positiveSlope,
			)
			x += blockX << BitmapWidthOffset
			y += blockY << BitmapWidthOffset
		}
	} else {
		for y < end {
			blockX, blockY := x>>BitmapWidthOffset, y>>BitmapWidthOffset
			if blockY >= TileWidth || blockX < 0 || blockX >= TileWidth {
				break
			}
			block := t.GetOrInsertBlock(blockX, blockY)
			x, y, errTerm = block.Rasterize(
				x-(blockX<<BitmapWidthOffset),
				y-(blockY<<BitmapWidthOffset),
				end-(blockY<<BitmapWidthOffset),
				errTerm, dx0, dy0, false, positiveSlope,
			)
			x += blockX << BitmapWidthOffset
			y += blockY << BitmapWidthOffset
		}
	}
	return x, y, errTerm
}
