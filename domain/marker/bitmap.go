package marker

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register webp for marker overrides
)

// ErrDecode is returned when marker bytes cannot be turned into a bitmap.
var ErrDecode = errors.New("marker: decode failed")

// Decode turns raw image file bytes (PNG, JPEG, GIF, BMP, TIFF or WebP) into
// a straight-alpha bitmap anchored at (0,0).
func Decode(raw []byte) (*image.NRGBA, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	out := imaging.Clone(img)
	if out.Rect.Dx() == 0 || out.Rect.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	return out, nil
}
