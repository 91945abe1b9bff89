// Package fogmap implements the three-level bit-packed spatial index that
// stores a person's cumulative visited footprint on Earth: a FogMap of
// Tiles of Blocks, each level a sparse grid over the next.
package fogmap

import (
	"errors"
	"fmt"
	"math"
)

// Grid geometry. The full-resolution grid is MapWidthOffset+TileWidthOffset+
// BitmapWidthOffset bits wide per axis (25 with byte alignment for the
// bitmap); AllOffset is the portion covered by a single tile (13 bits).
const (
	MapWidthOffset    = 9
	MapWidth          = int64(1) << MapWidthOffset
	TileWidthOffset   = 7
	TileWidth         = int64(1) << TileWidthOffset
	BitmapWidthOffset = 6
	BitmapWidth       = int64(1) << BitmapWidthOffset
	AllOffset         = TileWidthOffset + BitmapWidthOffset
	// MaxZoom is the fixed-point zoom at which add_line projects coordinates.
	MaxZoom = AllOffset + MapWidthOffset
)

// MaxLatitude is the standard Web Mercator clamp; projecting beyond this
// produces infinities.
const MaxLatitude = 85.05112878

// ErrBadCoordinate is returned by AddLine when an input coordinate is NaN.
var ErrBadCoordinate = errors.New("fogmap: bad coordinate")

// FogMap is a sparse 512x512 grid of Tiles keyed by (tile_x, tile_y). Tile
// (0,0) is the northwest corner. FogMap owns its Tiles; there are no
// back-references. Bits are only ever set, never cleared, by AddLine; the
// only code path that can clear bits is a bulk import overwriting an
// existing block (see package importer).
type FogMap struct {
	tiles map[tileKey]*Tile
}

type tileKey struct {
	X, Y int64
}

// New returns an empty FogMap.
func New() *FogMap {
	return &FogMap{tiles: make(map[tileKey]*Tile)}
}

// GetTile returns the tile at (x, y), or false if it has never been written.
func (m *FogMap) GetTile(x, y int64) (*Tile, bool) {
	t, ok := m.tiles[tileKey{x, y}]
	return t, ok
}

// TileCount returns the number of tiles that have ever been written to.
func (m *FogMap) TileCount() int {
	return len(m.tiles)
}

// Tiles calls fn for every present tile. Iteration order is unspecified.
// fn returning false stops iteration early.
func (m *FogMap) Tiles(fn func(x, y int64, t *Tile) bool) {
	for k, t := range m.tiles {
		if !fn(k.X, k.Y, t) {
			return
		}
	}
}

func (m *FogMap) getOrInsertTile(x, y int64) *Tile {
	k := tileKey{x, y}
	t, ok := m.tiles[k]
	if !ok {
		t = NewTile()
		m.tiles[k] = t
	}
	return t
}

// SetImportedBlock installs block at (blockX, blockY) within tile (tileX,
// tileY), creating the tile if needed and overwriting any block already
// there. This is the write path used by package importer; it is the one
// place in the core where a previously-set bit can become unset, since the
// whole block is replaced rather than OR'd in -- this keeps the overwrite
// behavior of the reference legacy importer rather than silently changing
// it to an additive merge.
func (m *FogMap) SetImportedBlock(tileX, tileY, blockX, blockY int64, block *Block) {
	tile := m.getOrInsertTile(tileX, tileY)
	tile.setBlock(blockX, blockY, block)
}

// projectToGrid applies the Web Mercator projection at the given fixed-point
// zoom, producing integer grid coordinates in [0, 2^zoom).
func projectToGrid(lng, lat float64, zoom int) (int64, int64) {
	mul := math.Ldexp(1, zoom)
	x := (lng + 180.0) / 360.0 * mul
	latRad := lat * math.Pi / 180.0
	y := (math.Pi - math.Asinh(math.Tan(latRad))) * mul / (2.0 * math.Pi)
	return int64(x), int64(y)
}

func clampLatitude(lat float64) float64 {
	switch {
	case lat > MaxLatitude:
		return MaxLatitude
	case lat < -MaxLatitude:
		return -MaxLatitude
	default:
		return lat
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// AddLine rasterizes the geographic segment (startLng, startLat) ->
// (endLng, endLat) into the map, setting every pixel the line crosses.
// Latitude is clamped to the Mercator domain before projection; a NaN
// coordinate is rejected outright with ErrBadCoordinate and leaves the map
// unchanged.
//
// A segment whose endpoints straddle longitude ±180 is shifted so it draws
// across the dateline rather than back across the prime meridian: whichever
// endpoint is behind is moved forward by one full world-width before
// rasterizing, and the tile lookup below reduces tile_x back into
// [0, MapWidth) so storage is unaffected.
func (m *FogMap) AddLine(startLng, startLat, endLng, endLat float64) error {
	if math.IsNaN(startLng) || math.IsNaN(startLat) || math.IsNaN(endLng) || math.IsNaN(endLat) {
		return fmt.Errorf("%w: coordinate is NaN", ErrBadCoordinate)
	}
	startLat = clampLatitude(startLat)
	endLat = clampLatitude(endLat)

	x0, y0 := projectToGrid(startLng, startLat, MaxZoom)
	x1, y1 := projectToGrid(endLng, endLat, MaxZoom)

	xHalf, _ := projectToGrid(0, 0, MaxZoom)
	if x1-x0 > xHalf {
		x0 += 2 * xHalf
	} else if x0-x1 > xHalf {
		x1 += 2 * xHalf
	}

	dx := x1 - x0
	dy := y1 - y0
	dx0 := absInt64(dx)
	dy0 := absInt64(dy)
	positiveSlope := (dx < 0 && dy < 0) || (dx > 0 && dy > 0)

	if dy0 <= dx0 {
		m.rasterizeDominantAxis(x0, y0, x1, y1, dx, dx0, dy0, true, positiveSlope)
	} else {
		m.rasterizeDominantAxis(x0, y0, x1, y1, dy, dx0, dy0, false, positiveSlope)
	}
	return nil
}

// rasterizeDominantAxis walks the line tile by tile, carrying the Bresenham
// error term across tile boundaries exactly as Tile.AddLine carries it
// across block boundaries.
func (m *FogMap) rasterizeDominantAxis(x0, y0, x1, y1, d, dx0, dy0 int64, xDominant, positiveSlope bool) {
	var x, y, end int64
	var errTerm int64
	if xDominant {
		errTerm = 2*dy0 - dx0
		if d >= 0 {
			x, y, end = x0, y0, x1
		} else {
			x, y, end = x1, y1, x0
		}
	} else {
		errTerm = 2*dx0 - dy0
		if d >= 0 {
			x, y, end = x0, y0, y1
		} else {
			x, y, end = x1, y1, y0
		}
	}

	// Mark the first pixel up front so a zero-length segment still visits
	// one pixel; the walk below only runs while the dominant axis is short
	// of end.
	startTileX, startTileY := x>>AllOffset, y>>AllOffset
	localX, localY := x-(startTileX<<AllOffset), y-(startTileY<<AllOffset)
	m.getOrInsertTile(startTileX%MapWidth, startTileY).
		GetOrInsertBlock(localX>>BitmapWidthOffset, localY>>BitmapWidthOffset).
		SetPoint(localX&(BitmapWidth-1), localY&(BitmapWidth-1))

	for {
		if xDominant {
			if x >= end {
				return
			}
		} else if y >= end {
			return
		}

		tileX, tileY := x>>AllOffset, y>>AllOffset
		tile := m.getOrInsertTile(tileX%MapWidth, tileY)

		if xDominant {
			localEnd := end - (tileX << AllOffset)
			x, y, errTerm = tile.AddLine(x-(tileX<<AllOffset), y-(tileY<<AllOffset), localEnd, errTerm, dx0, dy0, true, positiveSlope)
		} else {
			localEnd := end - (tileY << AllOffset)
			x, y, errTerm = tile.AddLine(x-(tileX<<AllOffset), y-(tileY<<AllOffset), localEnd, errTerm, dx0, dy0, false, positiveSlope)
		}
		x += tileX << AllOffset
		y += tileY << AllOffset
	}
}
