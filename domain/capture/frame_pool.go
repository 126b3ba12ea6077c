package capture

import (
	"image"
	"sync"
)

// Reusable frame pool for grabbers that write into caller-owned buffers (the
// GDI backend). Each tick captures one small region, so the pool usually
// holds a single frame that is reused for the whole session. Frames that are
// never recycled just fall back to the garbage collector.

var framePool sync.Pool // stores *image.RGBA

// acquireFrame returns a reusable w×h RGBA image with origin (0,0).
// The returned Pix length exactly matches rect area * 4, and Stride is width*4.
func acquireFrame(w, h int) *image.RGBA {
	rect := image.Rect(0, 0, w, h)
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	needed := w * h * 4
	var img *image.RGBA
	if v := framePool.Get(); v != nil {
		img = v.(*image.RGBA)
	}
	if img == nil || cap(img.Pix) < needed {
		img = &image.RGBA{Pix: make([]byte, needed), Stride: w * 4, Rect: rect}
	} else {
		img.Stride = w * 4
		img.Rect = rect
		img.Pix = img.Pix[:needed]
	}
	return img
}

// RecycleFrame returns the frame to the pool for potential reuse. The frame
// must no longer be accessed by the caller after invoking RecycleFrame.
func RecycleFrame(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	framePool.Put(img)
}
