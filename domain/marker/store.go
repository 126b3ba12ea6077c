package marker

import (
	"image"
	"sync"
)

// Variant is one rendition of the marker at a given scale.
type Variant struct {
	Image *image.NRGBA
	Scale float64
}

// TemplateStore owns the original marker bitmap and a single cached variant
// that last matched. The slot holds nothing or exactly one variant.
type TemplateStore struct {
	original *image.NRGBA

	mu     sync.RWMutex
	cached *Variant
}

// NewTemplateStore wraps an already decoded original.
func NewTemplateStore(original *image.NRGBA) *TemplateStore {
	return &TemplateStore{original: original}
}

// LoadTemplateStore decodes raw once. A decode failure is wrapped in ErrDecode.
func LoadTemplateStore(raw []byte) (*TemplateStore, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return NewTemplateStore(img), nil
}

// Original returns the unscaled marker. It must not be mutated.
func (s *TemplateStore) Original() *image.NRGBA { return s.original }

// Cached returns the cached variant, if any. Safe from any goroutine.
func (s *TemplateStore) Cached() (Variant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil {
		return Variant{}, false
	}
	return *s.cached, true
}

// Remember replaces the slot wholesale.
func (s *TemplateStore) Remember(v Variant) {
	if v.Image == nil {
		return
	}
	s.mu.Lock()
	s.cached = &v
	s.mu.Unlock()
}

// Forget empties the slot.
func (s *TemplateStore) Forget() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// TryCached runs the matcher against the cached variant only. The returned
// variant has a nil Image when the slot is empty.
func (s *TemplateStore) TryCached(haystack *image.RGBA, opt Options) (Variant, image.Point, bool) {
	v, ok := s.Cached()
	if !ok {
		return Variant{}, image.Point{}, false
	}
	at, hit := Locate(haystack, v.Image, opt)
	return v, at, hit
}
