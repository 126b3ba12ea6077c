package marker

import (
	"image"
	"image/color"
)

// rampTriangle builds a size×size needle whose opaque pixels form the lower
// left triangle (x <= y). Colour encodes position so renditions at other
// scales cannot line up pixel for pixel.
func rampTriangle(size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			a := uint8(0)
			if x <= y {
				a = 255
			}
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(13 * x), G: uint8(13 * y), B: 128, A: a})
		}
	}
	return img
}

var stripePalette = []color.NRGBA{
	{R: 255, A: 255},
	{G: 255, A: 255},
	{B: 255, A: 255},
	{R: 255, G: 255, B: 255, A: 255},
}

// stripedTriangle builds a w×h lower-left triangle of vertical colour bands.
// Bands tolerate a one pixel offset but drift apart across the width when
// the scale is off by 10%.
func stripedTriangle(w, h, band int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := stripePalette[(x/band)%len(stripePalette)]
			if x*h > y*w {
				c.A = 0
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func solidNeedle(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func filledHaystack(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// stamp renders every non-transparent pixel of src into dst at the given
// offset as an opaque pixel, the way a screen capture would show it.
func stamp(dst *image.RGBA, src *image.NRGBA, at image.Point) {
	b := src.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			p := src.NRGBAAt(b.Min.X+x, b.Min.Y+y)
			if p.A == 0 {
				continue
			}
			dst.SetRGBA(at.X+x, at.Y+y, color.RGBA{R: p.R, G: p.G, B: p.B, A: 255})
		}
	}
}

// strictOptions only accepts pixel-exact positions.
func strictOptions() Options {
	o := DefaultOptions()
	o.Tolerance = 0
	o.Threshold = 1.0
	return o
}

var black = color.RGBA{A: 255}
