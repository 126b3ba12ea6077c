package capture

import (
	"errors"
	"image"
	"testing"
	"time"
)

type countingRecycler struct {
	GrabberFunc
	recycled int
}

func (c *countingRecycler) Recycle(*image.RGBA) { c.recycled++ }

func TestRegionValidate(t *testing.T) {
	if err := (Region{Width: 0, Height: 10}).Validate(); !errors.Is(err, ErrEmptyRegion) {
		t.Fatalf("expected ErrEmptyRegion, got %v", err)
	}
	r := Region{X: -10, Y: 5, Width: 120, Height: 40}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.Rect(); got != image.Rect(-10, 5, 110, 45) {
		t.Fatalf("unexpected rect %v", got)
	}
}

func TestDisplayContaining(t *testing.T) {
	displays := []image.Rectangle{
		image.Rect(0, 0, 1920, 1080),
		image.Rect(-1280, 0, 0, 1024),
	}
	d, ok := DisplayContaining(image.Pt(-100, 10), displays)
	if !ok || d != displays[1] {
		t.Fatalf("expected left display, got %v ok=%v", d, ok)
	}
	if _, ok := DisplayContaining(image.Pt(5000, 10), displays); ok {
		t.Fatalf("point off desktop must not resolve")
	}
}

func TestDisplayGrabberClipsToContainingDisplay(t *testing.T) {
	var got image.Rectangle
	g := &DisplayGrabber{
		displays: func() []image.Rectangle {
			return []image.Rectangle{image.Rect(0, 0, 100, 100), image.Rect(100, 0, 300, 100)}
		},
		capture: func(r image.Rectangle) (*image.RGBA, error) {
			got = r
			return image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy())), nil
		},
	}
	if _, err := g.Grab(image.Rect(250, 80, 370, 120)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != image.Rect(250, 80, 300, 100) {
		t.Fatalf("expected clip to second display, got %v", got)
	}
	if _, err := g.Grab(image.Rect(400, 0, 420, 20)); !errors.Is(err, ErrOffscreen) {
		t.Fatalf("expected ErrOffscreen, got %v", err)
	}
	g.displays = func() []image.Rectangle { return nil }
	if _, err := g.Grab(image.Rect(0, 0, 10, 10)); !errors.Is(err, ErrNoDisplays) {
		t.Fatalf("expected ErrNoDisplays, got %v", err)
	}
}

func TestSnapshotterCountsCapturesAndFailures(t *testing.T) {
	fail := true
	g := GrabberFunc(func(r image.Rectangle) (*image.RGBA, error) {
		if fail {
			return nil, ErrOffscreen
		}
		return image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy())), nil
	})
	s := NewSnapshotter(g, nil)
	clock := time.Unix(100, 0)
	s.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	region := Region{X: 1, Y: 2, Width: 12, Height: 8}
	if _, err := s.Snapshot(region); !errors.Is(err, ErrOffscreen) {
		t.Fatalf("expected grabber error, got %v", err)
	}
	fail = false
	snap, err := s.Snapshot(region)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Sequence != 1 || snap.Image.Rect.Dx() != 12 || snap.Region != region {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Elapsed != time.Millisecond {
		t.Fatalf("expected elapsed 1ms, got %v", snap.Elapsed)
	}
	if _, err := s.Snapshot(Region{Width: 0, Height: 3}); !errors.Is(err, ErrEmptyRegion) {
		t.Fatalf("expected ErrEmptyRegion, got %v", err)
	}
	st := s.Stats()
	if st.Captures != 1 || st.Failures != 2 || st.AvgCapture != time.Millisecond {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.LastError == "" {
		t.Fatalf("expected last error recorded")
	}
}

func TestSnapshotterReleaseRecyclesPooledFrames(t *testing.T) {
	g := &countingRecycler{GrabberFunc: func(r image.Rectangle) (*image.RGBA, error) {
		return acquireFrame(r.Dx(), r.Dy()), nil
	}}
	s := NewSnapshotter(g, nil)
	snap, err := s.Snapshot(Region{Width: 4, Height: 4})
	if err != nil {
		t.Fatal(err)
	}
	s.Release(snap)
	if g.recycled != 1 {
		t.Fatalf("expected frame recycled once, got %d", g.recycled)
	}
}

func TestFramePoolReusesBacking(t *testing.T) {
	a := acquireFrame(8, 8)
	if len(a.Pix) != 256 || a.Stride != 32 {
		t.Fatalf("unexpected frame layout len=%d stride=%d", len(a.Pix), a.Stride)
	}
	RecycleFrame(a)
	b := acquireFrame(4, 4)
	if len(b.Pix) != 64 || b.Rect != image.Rect(0, 0, 4, 4) {
		t.Fatalf("unexpected recycled frame %v len=%d", b.Rect, len(b.Pix))
	}
	RecycleFrame(nil)
}

func TestNewGrabberRejectsUnknownBackend(t *testing.T) {
	if _, err := NewGrabber("bogus"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	g, err := NewGrabber("")
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if _, ok := g.(VovaGrabber); !ok {
		t.Fatalf("expected vova grabber by default, got %T", g)
	}
}
