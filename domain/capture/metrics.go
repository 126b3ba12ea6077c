package capture

import (
	"image"
	"time"
)

// FrameSnapshot carries one captured region and its metadata.
type FrameSnapshot struct {
	Image      *image.RGBA
	Region     Region
	CapturedAt time.Time
	Sequence   uint64
	Elapsed    time.Duration
}

// CaptureStats summarises snapshot behaviour for instrumentation.
type CaptureStats struct {
	Captures         uint64
	Failures         uint64
	AvgCapture       time.Duration
	AvgCaptureMicros float64
	LastCapture      time.Time
	LastError        string
	Sequence         uint64
}
