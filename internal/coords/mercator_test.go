package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLngToTileX_Zero(t *testing.T) {
	x := LngToTileX(0, 10)
	assert.Equal(t, int64(512), x, "lng=0 is the horizontal center of the tile grid")
}

func TestLatToTileY_Zero(t *testing.T) {
	y := LatToTileY(0, 10)
	assert.Equal(t, int64(512), y, "lat=0 is the vertical center of the tile grid")
}

func TestTileXYToLngLat_RoundTrip(t *testing.T) {
	const zoom = 12
	wantLng, wantLat := 13.4, 52.5

	x := LngToTileX(wantLng, zoom)
	y := LatToTileY(wantLat, zoom)

	gotLng, gotLat := TileXYToLngLat(x, y, zoom)

	// TileXYToLngLat returns the tile's northwest corner, so the recovered
	// point only needs to fall within one tile width of the input.
	n := 1 << zoom
	tileDegLng := 360.0 / float64(n)
	assert.InDelta(t, wantLng, gotLng, tileDegLng)
	assert.InDelta(t, wantLat, gotLat, tileDegLng)
}

func TestLngToTileX_Monotonic(t *testing.T) {
	a := LngToTileX(-100, 8)
	b := LngToTileX(0, 8)
	c := LngToTileX(100, 8)
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}
