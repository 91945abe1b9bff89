// Package mosaic assembles independently-rendered tile images into a single
// contact-sheet image, downsampling each with golang.org/x/image/draw. This
// is a post-core convenience: the shader itself never resamples or blends,
// but nothing stops a caller from doing so with the two-color images the
// core produces.
package mosaic

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// ErrNoTiles is returned when BuildContactSheet is given an empty tile
// list.
var ErrNoTiles = errors.New("mosaic: no tiles to compose")

// Tile is one rendered viewport tile, labeled by the zoom it was rendered
// at (purely for caller bookkeeping; the sheet is laid out in the order
// given).
type Tile struct {
	Zoom  int
	Image image.Image
}

// BuildContactSheet lays out tiles in row-major order across a grid with
// the given number of columns, downsampling (or upsampling) every tile to
// thumbSize x thumbSize with a bilinear filter, on a background of bg.
func BuildContactSheet(tiles []Tile, cols, thumbSize int, bg color.Color) (*image.RGBA, error) {
	if len(tiles) == 0 {
		return nil, ErrNoTiles
	}
	if cols <= 0 {
		cols = 1
	}

	rows := (len(tiles) + cols - 1) / cols
	sheet := image.NewRGBA(image.Rect(0, 0, cols*thumbSize, rows*thumbSize))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	for i, t := range tiles {
		col, row := i%cols, i/cols
		dstRect := image.Rect(col*thumbSize, row*thumbSize, (col+1)*thumbSize, (row+1)*thumbSize)
		if err := scaleInto(sheet, dstRect, t.Image); err != nil {
			return nil, fmt.Errorf("mosaic: tile %d (zoom %d): %w", i, t.Zoom, err)
		}
	}
	return sheet, nil
}

func scaleInto(dst draw.Image, dstRect image.Rectangle, src image.Image) error {
	if src == nil {
		return errors.New("nil source image")
	}
	xdraw.BiLinear.Scale(dst, dstRect, src, src.Bounds(), xdraw.Over, nil)
	return nil
}
