package marker

import (
	"image"
	"sync"
)

// Attempt identifies which rendition produced a result.
type Attempt int

const (
	AttemptNone Attempt = iota
	AttemptCached
	AttemptOriginal
	AttemptDeepScan
)

func (a Attempt) String() string {
	switch a {
	case AttemptCached:
		return "cached"
	case AttemptOriginal:
		return "original"
	case AttemptDeepScan:
		return "deep_scan"
	default:
		return "none"
	}
}

// Result summarises one search over a haystack.
type Result struct {
	Found bool
	Via   Attempt
	Scale float64
	At    image.Point
	// Tried counts renditions compared against the haystack.
	Tried int
}

// Searcher runs the per-tick attempt order against a TemplateStore:
// cached variant, original at 1.0, then (on request) the deep scan.
// The first success is written back to the store.
type Searcher struct {
	store *TemplateStore

	mu       sync.Mutex
	variants map[float64]*image.NRGBA
}

// NewSearcher returns a searcher bound to store.
func NewSearcher(store *TemplateStore) *Searcher {
	return &Searcher{store: store, variants: make(map[float64]*image.NRGBA)}
}

// Store returns the backing template store.
func (s *Searcher) Store() *TemplateStore { return s.store }

// Cheap runs the cached and original-scale attempts.
func (s *Searcher) Cheap(haystack *image.RGBA, opt Options) Result {
	var res Result
	if cached, at, hit := s.store.TryCached(haystack, opt); cached.Image != nil {
		res.Tried++
		if hit {
			return Result{Found: true, Via: AttemptCached, Scale: cached.Scale, At: at, Tried: res.Tried}
		}
		if isUnitScale(cached.Scale) {
			return res
		}
	}
	orig := s.store.Original()
	res.Tried++
	if at, ok := Locate(haystack, orig, opt); ok {
		s.store.Remember(Variant{Image: orig, Scale: 1.0})
		return Result{Found: true, Via: AttemptOriginal, Scale: 1.0, At: at, Tried: res.Tried}
	}
	return res
}

// Deep tries every scale in order, skipping 1.0 and degenerate sizes.
func (s *Searcher) Deep(haystack *image.RGBA, opt Options, scales []float64, minPx int) Result {
	var res Result
	s.prune(scales)
	for _, scale := range scales {
		if isUnitScale(scale) {
			continue
		}
		v, ok := s.variant(scale, minPx)
		if !ok {
			continue
		}
		res.Tried++
		if at, ok := Locate(haystack, v, opt); ok {
			s.store.Remember(Variant{Image: v, Scale: scale})
			return Result{Found: true, Via: AttemptDeepScan, Scale: scale, At: at, Tried: res.Tried}
		}
	}
	return res
}

// Search runs Cheap and, when deep is true and Cheap failed, Deep.
func (s *Searcher) Search(haystack *image.RGBA, opt Options, scales []float64, minPx int, deep bool) Result {
	res := s.Cheap(haystack, opt)
	if res.Found || !deep {
		return res
	}
	d := s.Deep(haystack, opt, scales, minPx)
	d.Tried += res.Tried
	return d
}

func (s *Searcher) variant(scale float64, minPx int) (*image.NRGBA, bool) {
	s.mu.Lock()
	v, ok := s.variants[scale]
	s.mu.Unlock()
	if !ok {
		v, _ = Resample(s.store.Original(), scale, 1)
		s.mu.Lock()
		s.variants[scale] = v
		s.mu.Unlock()
	}
	if v == nil || v.Rect.Dx() < minPx || v.Rect.Dy() < minPx {
		return nil, false
	}
	return v, true
}

// prune drops memoised variants whose scale left the candidate list.
func (s *Searcher) prune(scales []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.variants) == 0 {
		return
	}
	keep := make(map[float64]struct{}, len(scales))
	for _, sc := range scales {
		keep[sc] = struct{}{}
	}
	for sc := range s.variants {
		if _, ok := keep[sc]; !ok {
			delete(s.variants, sc)
		}
	}
}
