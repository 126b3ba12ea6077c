package capture

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrEmptyRegion is returned for a region with non-positive size.
	ErrEmptyRegion = errors.New("capture: empty region")
	// ErrOffscreen is returned when the region lies outside every display.
	ErrOffscreen = errors.New("capture: region off desktop")
	// ErrNoDisplays is returned when no active display is found.
	ErrNoDisplays = errors.New("capture: no displays")
	// ErrUnsupported is returned for a backend not available on this platform.
	ErrUnsupported = errors.New("capture: backend unsupported on this platform")
)

// Region is an integer rectangle in virtual-screen coordinates.
type Region struct {
	X, Y          int
	Width, Height int
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Validate reports ErrEmptyRegion for width or height <= 0.
func (r Region) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyRegion, r.Width, r.Height)
	}
	return nil
}

// Grabber returns the pixels of a screen rectangle as an opaque RGBA bitmap.
type Grabber interface {
	Grab(r image.Rectangle) (*image.RGBA, error)
}

// GrabberFunc adapts a function to Grabber.
type GrabberFunc func(r image.Rectangle) (*image.RGBA, error)

func (f GrabberFunc) Grab(r image.Rectangle) (*image.RGBA, error) { return f(r) }

// Recycler is implemented by grabbers that hand out pooled frames.
type Recycler interface {
	Recycle(img *image.RGBA)
}
