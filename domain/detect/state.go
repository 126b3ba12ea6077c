package detect

import (
	"time"

	"github.com/soocke/pixel-cue/domain/marker"
	"github.com/soocke/pixel-cue/domain/presence"
)

// DetectorState is the single owned value describing the engine. The
// scheduler goroutine is its only writer apart from the enable flag; every
// other reader gets a copy through Scheduler.State.
type DetectorState struct {
	Enabled     bool
	Inert       bool
	Present     bool
	MissStreak  uint32
	TickCount   uint32
	CachedScale float64
	HasCache    bool

	Ticks     uint64
	Triggers  uint64
	DeepScans uint64
	LastFound bool
	LastVia   marker.Attempt
	LastTick  time.Time
}

// PresenceState maps Present onto the presence machine states.
func (s DetectorState) PresenceState() presence.State {
	if s.Present {
		return presence.StatePresent
	}
	return presence.StateIdle
}

// TickReport describes one scheduler tick.
type TickReport struct {
	Tick       uint64
	At         time.Time
	Skipped    bool
	SkipReason string
	CaptureErr error
	Found      bool
	Via        marker.Attempt
	Scale      float64
	DeepScan   bool
	Reused     bool
	TickCount  uint32
	State      presence.State
	MissStreak uint32
	Fired      bool
	Dispatched bool
	Duration   time.Duration
}

// Skip reasons.
const (
	SkipInert    = "inert"
	SkipDisabled = "disabled"
	SkipOverlay  = "overlay_busy"
)
