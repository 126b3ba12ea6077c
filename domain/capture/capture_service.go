package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const captureStatsLogInterval = 5 * time.Second

// Snapshotter takes region snapshots on demand for the detection loop and
// keeps capture instrumentation. Use NewSnapshotter to construct an instance.
type Snapshotter struct {
	grabber Grabber
	logger  *slog.Logger
	now     func() time.Time

	captures     atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
	lastCapture  atomic.Int64
	lastLog      atomic.Int64

	errMu   sync.Mutex
	lastErr string
}

// NewSnapshotter wraps g. A nil logger disables stats logging.
func NewSnapshotter(g Grabber, logger *slog.Logger) *Snapshotter {
	return &Snapshotter{grabber: g, logger: logger, now: time.Now}
}

// Snapshot captures region r. Errors are returned to the caller untouched;
// the detection loop decides how to treat them.
func (s *Snapshotter) Snapshot(r Region) (FrameSnapshot, error) {
	if err := r.Validate(); err != nil {
		s.fail(err)
		return FrameSnapshot{}, err
	}
	start := s.now()
	img, err := s.grabber.Grab(r.Rect())
	if err != nil {
		s.fail(err)
		return FrameSnapshot{}, err
	}
	if img == nil {
		s.fail(ErrNoDisplays)
		return FrameSnapshot{}, ErrNoDisplays
	}
	end := s.now()
	elapsed := end.Sub(start)
	s.captureNanos.Add(uint64(elapsed.Nanoseconds()))
	s.captures.Add(1)
	s.lastCapture.Store(end.UnixNano())
	seq := s.sequence.Add(1)
	s.maybeLogStats(end)
	return FrameSnapshot{Image: img, Region: r, CapturedAt: end, Sequence: seq, Elapsed: elapsed}, nil
}

// Release hands the frame back to pooled grabbers. The frame must not be
// used afterwards.
func (s *Snapshotter) Release(f FrameSnapshot) {
	if rc, ok := s.grabber.(Recycler); ok && f.Image != nil {
		rc.Recycle(f.Image)
	}
}

func (s *Snapshotter) fail(err error) {
	s.failures.Add(1)
	s.errMu.Lock()
	s.lastErr = err.Error()
	s.errMu.Unlock()
}

// Stats returns a snapshot of the counters.
func (s *Snapshotter) Stats() CaptureStats {
	captures := s.captures.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	var last time.Time
	if ns := s.lastCapture.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	s.errMu.Lock()
	lastErr := s.lastErr
	s.errMu.Unlock()
	return CaptureStats{
		Captures:         captures,
		Failures:         s.failures.Load(),
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      last,
		LastError:        lastErr,
		Sequence:         s.sequence.Load(),
	}
}

func (s *Snapshotter) maybeLogStats(now time.Time) {
	if s.logger == nil {
		return
	}
	prev := s.lastLog.Load()
	if prev != 0 && now.Sub(time.Unix(0, prev)) < captureStatsLogInterval {
		return
	}
	if !s.lastLog.CompareAndSwap(prev, now.UnixNano()) {
		return
	}
	if prev == 0 {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"failures", stats.Failures,
		"avg_capture", stats.AvgCapture,
		"last_error", stats.LastError,
	)
}
