package marker

import "image"

// Options tunes the fuzzy comparison. Non-positive steps, a negative
// tolerance and a threshold outside (0,1] fall back to DefaultOptions.
type Options struct {
	// Tolerance is the largest mean per-channel RGB difference that still
	// counts a sampled pixel as matched.
	Tolerance int
	// Threshold is the matched/sampled fraction required at a position.
	Threshold float64
	// ScanStep is the grid step of candidate positions in the haystack.
	ScanStep int
	// SampleStep is the needle sampling density of the area comparison.
	SampleStep int
	// QuickAlpha below which the centre pixel skips the quick reject.
	QuickAlpha uint8
	// OpaqueAlpha below which a needle pixel carries no signal.
	OpaqueAlpha uint8
}

// DefaultOptions returns tolerance 70, threshold 0.75 and step 2 sampling.
func DefaultOptions() Options {
	return Options{Tolerance: 70, Threshold: 0.75, ScanStep: 2, SampleStep: 2, QuickAlpha: 10, OpaqueAlpha: 20}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Tolerance < 0 {
		o.Tolerance = d.Tolerance
	}
	if o.Threshold <= 0 || o.Threshold > 1 {
		o.Threshold = d.Threshold
	}
	if o.ScanStep <= 0 {
		o.ScanStep = d.ScanStep
	}
	if o.SampleStep <= 0 {
		o.SampleStep = d.SampleStep
	}
	return o
}

// Match reports whether needle appears anywhere in haystack.
func Match(haystack *image.RGBA, needle *image.NRGBA, opt Options) bool {
	_, ok := Locate(haystack, needle, opt)
	return ok
}

// Locate returns the first grid position (relative to the haystack origin)
// where needle matches. It is a presence test; the position is not the best one.
func Locate(haystack *image.RGBA, needle *image.NRGBA, opt Options) (image.Point, bool) {
	if haystack == nil || needle == nil {
		return image.Point{}, false
	}
	opt = opt.normalized()
	hw, hh := haystack.Rect.Dx(), haystack.Rect.Dy()
	nw, nh := needle.Rect.Dx(), needle.Rect.Dy()
	if nw == 0 || nh == 0 || nw > hw || nh > hh {
		return image.Point{}, false
	}
	for y := 0; y <= hh-nh; y += opt.ScanStep {
		for x := 0; x <= hw-nw; x += opt.ScanStep {
			if !quickCheck(haystack, needle, x, y, opt) {
				continue
			}
			if fuzzyMatch(haystack, needle, x, y, opt) {
				return image.Pt(x, y), true
			}
		}
	}
	return image.Point{}, false
}

// quickCheck compares only the needle's centre pixel.
func quickCheck(h *image.RGBA, n *image.NRGBA, sx, sy int, opt Options) bool {
	cx, cy := n.Rect.Dx()/2, n.Rect.Dy()/2
	ni := n.PixOffset(n.Rect.Min.X+cx, n.Rect.Min.Y+cy)
	if n.Pix[ni+3] < opt.QuickAlpha {
		return true
	}
	hi := h.PixOffset(h.Rect.Min.X+sx+cx, h.Rect.Min.Y+sy+cy)
	return channelDistance(h.Pix[hi:hi+3:hi+3], n.Pix[ni:ni+3:ni+3]) <= opt.Tolerance
}

func fuzzyMatch(h *image.RGBA, n *image.NRGBA, sx, sy int, opt Options) bool {
	nw, nh := n.Rect.Dx(), n.Rect.Dy()
	total, matched := 0, 0
	for y := 0; y < nh; y += opt.SampleStep {
		ni := n.PixOffset(n.Rect.Min.X, n.Rect.Min.Y+y)
		hi := h.PixOffset(h.Rect.Min.X+sx, h.Rect.Min.Y+sy+y)
		for x := 0; x < nw; x += opt.SampleStep {
			np := n.Pix[ni+x*4 : ni+x*4+4 : ni+x*4+4]
			if np[3] < opt.OpaqueAlpha {
				continue
			}
			total++
			hp := h.Pix[hi+x*4 : hi+x*4+3 : hi+x*4+3]
			if channelDistance(hp, np[:3]) <= opt.Tolerance {
				matched++
			}
		}
	}
	if total == 0 {
		return true
	}
	return float64(matched)/float64(total) >= opt.Threshold
}

// channelDistance is the truncated mean of the absolute R, G and B differences.
func channelDistance(a, b []uint8) int {
	return (absDiff(a[0], b[0]) + absDiff(a[1], b[1]) + absDiff(a[2], b[2])) / 3
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
