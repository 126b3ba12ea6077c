package marker

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/soocke/pixel-cue/assets"
)

// scaledScene renders the ramp triangle at scale into a 120x40 black region,
// using the same resampler the searcher uses.
func scaledScene(t *testing.T, needle *image.NRGBA, scale float64, at image.Point) *image.RGBA {
	t.Helper()
	v, ok := Resample(needle, scale, 5)
	if !ok {
		t.Fatalf("resample %.2f failed", scale)
	}
	hay := filledHaystack(120, 40, black)
	stamp(hay, v, at)
	return hay
}

func TestSearchFindsTriangleRenderedTenPercentLarger(t *testing.T) {
	needle := rampTriangle(20)
	// Drawn 10% larger on an even grid position.
	hay := scaledScene(t, needle, 1.1, image.Pt(44, 4))
	s := NewSearcher(NewTemplateStore(needle))
	scales := []float64{0.8, 1.1, 1.3}

	if res := s.Cheap(hay, strictOptions()); res.Found {
		t.Fatalf("original scale must not match the enlarged marker, got %+v", res)
	}
	res := s.Search(hay, strictOptions(), scales, 5, true)
	if !res.Found || res.Via != AttemptDeepScan {
		t.Fatalf("expected deep scan hit, got %+v", res)
	}
	if res.Scale != 1.1 {
		t.Fatalf("expected scale 1.1, got %v", res.Scale)
	}
	if res.At != image.Pt(44, 4) {
		t.Fatalf("expected position (44,4), got %v", res.At)
	}
	cached, ok := s.Store().Cached()
	if !ok || cached.Scale != 1.1 {
		t.Fatalf("expected cached scale 1.1, got %+v ok=%v", cached, ok)
	}
	if w := cached.Image.Rect.Dx(); w != 22 {
		t.Fatalf("expected cached width 22, got %d", w)
	}
}

func TestSearchDefaultOptionsFindEnlargedMarkerOffGrid(t *testing.T) {
	needle := stripedTriangle(160, 30, 10)
	v, ok := Resample(needle, 1.1, 5)
	if !ok {
		t.Fatalf("resample 1.1 failed")
	}
	hay := filledHaystack(230, 40, black)
	// Odd on both axes, so no scan position lines up exactly.
	stamp(hay, v, image.Pt(43, 3))
	s := NewSearcher(NewTemplateStore(needle))

	if res := s.Cheap(hay, DefaultOptions()); res.Found {
		t.Fatalf("original must not match a marker drawn 10%% larger, got %+v", res)
	}
	res := s.Search(hay, DefaultOptions(), []float64{0.9, 1.1, 1.25}, 5, true)
	if !res.Found || res.Via != AttemptDeepScan || res.Scale != 1.1 {
		t.Fatalf("expected deep scan hit at 1.1, got %+v", res)
	}
	if dx, dy := res.At.X-43, res.At.Y-3; dx < -2 || dx > 2 || dy < -2 || dy > 2 {
		t.Fatalf("expected a hit near (43,3), got %v", res.At)
	}
	if cached, ok := s.Store().Cached(); !ok || cached.Scale != 1.1 {
		t.Fatalf("expected cached scale 1.1, got %+v ok=%v", cached, ok)
	}
}

func TestSearchCacheConvergence(t *testing.T) {
	needle := rampTriangle(20)
	hay := scaledScene(t, needle, 1.2, image.Pt(40, 6))
	s := NewSearcher(NewTemplateStore(needle))
	scales := []float64{0.9, 1.2}

	first := s.Search(hay, strictOptions(), scales, 5, true)
	if !first.Found || first.Scale != 1.2 || first.Via != AttemptDeepScan {
		t.Fatalf("expected deep scan hit at 1.2, got %+v", first)
	}
	next := s.Search(hay, strictOptions(), scales, 5, false)
	if !next.Found || next.Via != AttemptCached || next.Scale != 1.2 {
		t.Fatalf("expected cached hit at 1.2 without deep scan, got %+v", next)
	}
	if next.Tried != 1 {
		t.Fatalf("expected exactly one rendition tried, got %d", next.Tried)
	}
}

func TestSearchOriginalHitIsCached(t *testing.T) {
	needle := rampTriangle(20)
	hay := filledHaystack(60, 30, black)
	stamp(hay, needle, image.Pt(10, 6))
	s := NewSearcher(NewTemplateStore(needle))
	res := s.Cheap(hay, strictOptions())
	if !res.Found || res.Via != AttemptOriginal || res.Scale != 1.0 {
		t.Fatalf("expected original hit, got %+v", res)
	}
	v, ok := s.Store().Cached()
	if !ok || v.Scale != 1.0 || v.Image != needle {
		t.Fatalf("expected original cached, got %+v", v)
	}
	res = s.Cheap(hay, strictOptions())
	if res.Via != AttemptCached {
		t.Fatalf("expected cached attempt next, got %v", res.Via)
	}
}

func TestSearchSkipsOriginalWhenCacheIsUnitScale(t *testing.T) {
	needle := rampTriangle(20)
	store := NewTemplateStore(needle)
	store.Remember(Variant{Image: needle, Scale: 1.0})
	s := NewSearcher(store)
	res := s.Cheap(filledHaystack(60, 30, black), strictOptions())
	if res.Found || res.Tried != 1 {
		t.Fatalf("expected a single failed attempt, got %+v", res)
	}
}

func TestSearchDeepSkipsDegenerateAndUnitScales(t *testing.T) {
	needle := solidNeedle(6, 6, color.NRGBA{R: 10, G: 200, B: 10, A: 255})
	s := NewSearcher(NewTemplateStore(needle))
	// 6*0.7 = 4 px is below the 5 px floor; 1.0 is the original.
	res := s.Deep(filledHaystack(30, 30, black), DefaultOptions(), []float64{0.7, 1.0}, 5)
	if res.Found || res.Tried != 0 {
		t.Fatalf("expected nothing tried, got %+v", res)
	}
}

func TestSearchDeepNotRunWhenNotRequested(t *testing.T) {
	needle := rampTriangle(20)
	hay := scaledScene(t, needle, 1.1, image.Pt(44, 4))
	s := NewSearcher(NewTemplateStore(needle))
	res := s.Search(hay, strictOptions(), []float64{1.1}, 5, false)
	if res.Found || res.Via != AttemptNone {
		t.Fatalf("expected miss without deep scan, got %+v", res)
	}
	if _, ok := s.Store().Cached(); ok {
		t.Fatalf("cache must stay empty after a miss")
	}
}

func TestSearchPrunesVariantsOutsideScaleList(t *testing.T) {
	s := NewSearcher(NewTemplateStore(rampTriangle(20)))
	hay := filledHaystack(60, 40, black)
	s.Deep(hay, strictOptions(), []float64{0.8, 1.2}, 5)
	if len(s.variants) != 2 {
		t.Fatalf("expected 2 memoised variants, got %d", len(s.variants))
	}
	s.Deep(hay, strictOptions(), []float64{1.2}, 5)
	if _, ok := s.variants[0.8]; ok || len(s.variants) != 1 {
		t.Fatalf("expected 0.8 pruned, got %d entries", len(s.variants))
	}
}

func TestStoreRememberOverwritesSingleSlot(t *testing.T) {
	store := NewTemplateStore(rampTriangle(20))
	if v, _, hit := store.TryCached(filledHaystack(30, 30, black), DefaultOptions()); hit || v.Image != nil {
		t.Fatalf("empty store must not report a cached match")
	}
	a := rampTriangle(10)
	b := rampTriangle(12)
	store.Remember(Variant{Image: a, Scale: 0.5})
	store.Remember(Variant{Image: b, Scale: 0.6})
	v, ok := store.Cached()
	if !ok || v.Image != b || v.Scale != 0.6 {
		t.Fatalf("expected latest variant, got %+v", v)
	}
	store.Forget()
	if _, ok := store.Cached(); ok {
		t.Fatalf("expected empty slot after Forget")
	}
}

func TestDecodeBundledMarker(t *testing.T) {
	img, err := Decode(assets.MarkerPNG)
	if err != nil {
		t.Fatalf("decode bundled marker: %v", err)
	}
	if img.Rect.Dx() != 24 || img.Rect.Dy() != 24 {
		t.Fatalf("unexpected marker size %v", img.Rect)
	}
}

func TestDecodeCorruptBytes(t *testing.T) {
	_, err := LoadTemplateStore([]byte("definitely not an image"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if _, err := Decode(nil); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for empty input, got %v", err)
	}
}

func TestResampleSize(t *testing.T) {
	src := rampTriangle(20)
	v, ok := Resample(src, 1.2, 5)
	if !ok || v.Rect.Dx() != 24 || v.Rect.Dy() != 24 {
		t.Fatalf("expected 24x24, got %v ok=%v", v.Rect, ok)
	}
	if v, ok := Resample(src, 1.0, 5); !ok || v != src {
		t.Fatalf("unit scale must return the original")
	}
	if _, ok := Resample(src, 0.2, 5); ok {
		t.Fatalf("4px result must be rejected")
	}
}
