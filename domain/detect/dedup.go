package detect

import (
	"encoding/binary"
	"image"

	"github.com/cespare/xxhash/v2"
)

// frameDeduper remembers a digest of the previous frame's pixels so a tick
// can reuse the previous result when the region did not change. Any pixel
// change, however small, counts as a change.
type frameDeduper struct {
	digest xxhash.Digest
	last   uint64
	valid  bool
}

// same digests img and reports whether it equals the previous frame.
func (d *frameDeduper) same(img *image.RGBA) bool {
	if img == nil {
		d.valid = false
		return false
	}
	sum := d.sum(img)
	prev, ok := d.last, d.valid
	d.last, d.valid = sum, true
	return ok && prev == sum
}

func (d *frameDeduper) sum(img *image.RGBA) uint64 {
	b := img.Rect
	var dims [16]byte
	binary.LittleEndian.PutUint64(dims[:8], uint64(b.Dx()))
	binary.LittleEndian.PutUint64(dims[8:], uint64(b.Dy()))
	d.digest.Reset()
	_, _ = d.digest.Write(dims[:])
	rowLen := b.Dx() * 4
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := img.PixOffset(b.Min.X, y)
		_, _ = d.digest.Write(img.Pix[i : i+rowLen])
	}
	return d.digest.Sum64()
}

func (d *frameDeduper) reset() { d.valid = false }
