package marker

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ScaledSize returns the truncated dimensions of a w×h bitmap at scale.
func ScaledSize(w, h int, scale float64) (int, int) {
	return int(float64(w) * scale), int(float64(h) * scale)
}

// Resample returns src resized by scale with a Lanczos filter. It returns
// false when the result would be smaller than minPx in either dimension.
func Resample(src *image.NRGBA, scale float64, minPx int) (*image.NRGBA, bool) {
	if src == nil || scale <= 0 {
		return nil, false
	}
	if isUnitScale(scale) {
		return src, true
	}
	w, h := ScaledSize(src.Rect.Dx(), src.Rect.Dy(), scale)
	if w < minPx || h < minPx || w <= 0 || h <= 0 {
		return nil, false
	}
	return imaging.Resize(src, w, h, imaging.Lanczos), true
}

func isUnitScale(s float64) bool { return math.Abs(s-1) < 1e-9 }
