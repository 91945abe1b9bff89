package coords

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileXYZ identifies a single viewport tile in the standard XYZ scheme that
// TileShader consumes.
type TileXYZ struct {
	X, Y int64
	Zoom int
}

// TilesInBBox enumerates every viewport tile intersecting bbox
// ([minLon, minLat, maxLon, maxLat], WGS84) at each zoom in
// [zoomMin, zoomMax], using orb/maptile to find the corner tiles at each
// zoom. Returns a bare TileXYZ instead of maptile.Tile since the shader
// and FogMap key on raw (x, y, zoom) integers, not orb's tile type.
func TilesInBBox(bbox [4]float64, zoomMin, zoomMax int) []TileXYZ {
	minLon, minLat, maxLon, maxLat := bbox[0], bbox[1], bbox[2], bbox[3]
	minPoint := orb.Point{minLon, minLat}
	maxPoint := orb.Point{maxLon, maxLat}

	tiles := make([]TileXYZ, 0, TileCountInBBox(bbox, zoomMin, zoomMax))
	for z := zoomMin; z <= zoomMax; z++ {
		zoom := maptile.Zoom(z)
		minTile := maptile.At(minPoint, zoom)
		maxTile := maptile.At(maxPoint, zoom)

		minX, maxX := minTile.X, maxTile.X
		if minX > maxX {
			minX, maxX = maxX, minX
		}
		minY, maxY := minTile.Y, maxTile.Y
		if minY > maxY {
			minY, maxY = maxY, minY
		}

		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				tiles = append(tiles, TileXYZ{X: int64(x), Y: int64(y), Zoom: z})
			}
		}
	}
	return tiles
}

// TileCountInBBox returns the number of tiles TilesInBBox would return,
// without allocating the slice -- used to size it and for progress
// estimation.
func TileCountInBBox(bbox [4]float64, zoomMin, zoomMax int) int {
	minLon, minLat, maxLon, maxLat := bbox[0], bbox[1], bbox[2], bbox[3]
	minPoint := orb.Point{minLon, minLat}
	maxPoint := orb.Point{maxLon, maxLat}

	count := 0
	for z := zoomMin; z <= zoomMax; z++ {
		zoom := maptile.Zoom(z)
		minTile := maptile.At(minPoint, zoom)
		maxTile := maptile.At(maxPoint, zoom)

		minX, maxX := minTile.X, maxTile.X
		if minX > maxX {
			minX, maxX = maxX, minX
		}
		minY, maxY := minTile.Y, maxTile.Y
		if minY > maxY {
			minY, maxY = maxY, minY
		}

		count += int(maxX-minX+1) * int(maxY-minY+1)
	}
	return count
}
