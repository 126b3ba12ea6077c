package capture

import (
	"fmt"
	"image"

	kbscreenshot "github.com/kbinani/screenshot"
	vovascreenshot "github.com/vova616/screenshot"
)

// NewGrabber returns the backend named by the config value: "vova" (default),
// "display" or "gdi".
func NewGrabber(backend string) (Grabber, error) {
	switch backend {
	case "", "vova":
		return VovaGrabber{}, nil
	case "display":
		return NewDisplayGrabber(), nil
	case "gdi":
		return newGDIGrabber()
	default:
		return nil, fmt.Errorf("capture: unknown backend %q", backend)
	}
}

// VovaGrabber captures through github.com/vova616/screenshot, clipped to the
// primary screen rectangle.
type VovaGrabber struct{}

func (VovaGrabber) Grab(r image.Rectangle) (*image.RGBA, error) {
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	screen, err := vovascreenshot.ScreenRect()
	if err != nil {
		return nil, fmt.Errorf("capture: screen rect: %w", err)
	}
	clipped := r.Intersect(screen)
	if clipped.Empty() {
		return nil, fmt.Errorf("%w: region=%v screen=%v", ErrOffscreen, r, screen)
	}
	img, err := vovascreenshot.CaptureRect(clipped)
	if err != nil {
		return nil, fmt.Errorf("capture: rect %v: %w", clipped, err)
	}
	return img, nil
}

// DisplayGrabber captures from the display that contains the region origin,
// clipping the region to that display.
type DisplayGrabber struct {
	displays func() []image.Rectangle
	capture  func(image.Rectangle) (*image.RGBA, error)
}

// NewDisplayGrabber uses github.com/kbinani/screenshot for display lookup and capture.
func NewDisplayGrabber() *DisplayGrabber {
	return &DisplayGrabber{displays: activeDisplays, capture: kbscreenshot.CaptureRect}
}

func activeDisplays() []image.Rectangle {
	n := kbscreenshot.NumActiveDisplays()
	out := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, kbscreenshot.GetDisplayBounds(i))
	}
	return out
}

// DisplayContaining returns the first display whose bounds contain p.
func DisplayContaining(p image.Point, displays []image.Rectangle) (image.Rectangle, bool) {
	for _, d := range displays {
		if p.In(d) {
			return d, true
		}
	}
	return image.Rectangle{}, false
}

func (g *DisplayGrabber) Grab(r image.Rectangle) (*image.RGBA, error) {
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	ds := g.displays()
	if len(ds) == 0 {
		return nil, ErrNoDisplays
	}
	d, ok := DisplayContaining(r.Min, ds)
	if !ok {
		return nil, fmt.Errorf("%w: origin %v", ErrOffscreen, r.Min)
	}
	clipped := r.Intersect(d)
	img, err := g.capture(clipped)
	if err != nil {
		return nil, fmt.Errorf("capture: display %v rect %v: %w", d, clipped, err)
	}
	return img, nil
}

var (
	_ Grabber = VovaGrabber{}
	_ Grabber = (*DisplayGrabber)(nil)
)
