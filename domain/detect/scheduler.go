package detect

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/pixel-cue/config"
	"github.com/soocke/pixel-cue/domain/capture"
	"github.com/soocke/pixel-cue/domain/marker"
	"github.com/soocke/pixel-cue/domain/presence"
	"github.com/soocke/pixel-cue/domain/trigger"
	"github.com/soocke/pixel-cue/syncx"
)

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("detect: scheduler already running")

// Snapshotter is the narrowed capture dependency.
type Snapshotter interface {
	Snapshot(r capture.Region) (capture.FrameSnapshot, error)
	Release(f capture.FrameSnapshot)
}

// Dispatcher receives rising edges. It must not block.
type Dispatcher interface {
	Dispatch(ev trigger.Event) bool
}

// Observer is notified after every tick, on the scheduler goroutine.
type Observer interface {
	Observe(r TickReport, s DetectorState)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r TickReport, s DetectorState)

func (f ObserverFunc) Observe(r TickReport, s DetectorState) { f(r, s) }

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Deps wires a Scheduler. Config is read at the top of every tick.
// A nil Searcher leaves the engine inert.
type Deps struct {
	Config     func() *config.Config
	Snapshots  Snapshotter
	Searcher   *marker.Searcher
	Dispatcher Dispatcher
	Overlay    *OverlayLock
	Logger     *slog.Logger
	Now        func() time.Time
	Sleep      Sleeper
}

// Scheduler drives the capture, match, debounce and dispatch loop.
type Scheduler struct {
	cfg        func() *config.Config
	snaps      Snapshotter
	searcher   *marker.Searcher
	dispatcher Dispatcher
	overlay    *OverlayLock
	logger     *slog.Logger
	now        func() time.Time
	sleep      Sleeper

	machine  *presence.Machine
	state    *syncx.RWGuard[DetectorState]
	dedup    frameDeduper
	lastRaw  marker.Result
	edgeSeq  uint64
	tickSeq  uint64
	running  atomic.Bool
	obsMu    sync.RWMutex
	observer []Observer
}

// NewScheduler builds a scheduler. The enable flag starts from the config.
func NewScheduler(d Deps) *Scheduler {
	s := &Scheduler{
		cfg:        d.Config,
		snaps:      d.Snapshots,
		searcher:   d.Searcher,
		dispatcher: d.Dispatcher,
		overlay:    d.Overlay,
		logger:     d.Logger,
		now:        d.Now,
		sleep:      d.Sleep,
	}
	if s.cfg == nil {
		def := config.DefaultConfig()
		s.cfg = func() *config.Config { return def }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepCtx
	}
	s.machine = presence.NewMachine(d.Logger)
	s.state = syncx.NewGuard(DetectorState{Enabled: s.cfg().Enabled, Inert: d.Searcher == nil})
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns a copy of the detector state. Safe from any goroutine.
func (s *Scheduler) State() DetectorState { return s.state.Get() }

// SetEnabled toggles detection. Takes effect at the next tick.
func (s *Scheduler) SetEnabled(on bool) {
	s.state.Write(func(st *DetectorState) { st.Enabled = on })
}

// Enabled reports the enable flag.
func (s *Scheduler) Enabled() bool { return s.state.Get().Enabled }

// Running reports whether Run is active.
func (s *Scheduler) Running() bool { return s.running.Load() }

// AddObserver registers o for tick reports.
func (s *Scheduler) AddObserver(o Observer) {
	if o == nil {
		return
	}
	s.obsMu.Lock()
	s.observer = append(s.observer, o)
	s.obsMu.Unlock()
}

// Run ticks until ctx is done, sleeping the configured interval between
// ticks. An inert scheduler never ticks. Cancellation is not an error.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)
	if s.searcher == nil {
		if s.logger != nil {
			s.logger.Warn("marker unavailable, detection inert for this session")
		}
		<-ctx.Done()
		return nil
	}
	if s.logger != nil {
		s.logger.Info("detection started", "interval_ms", s.cfg().PollIntervalMs)
	}
	for {
		if ctx.Err() != nil {
			break
		}
		s.Tick(ctx)
		if err := s.sleep(ctx, pollInterval(s.cfg())); err != nil {
			break
		}
	}
	if s.logger != nil {
		s.logger.Info("detection stopped", "ticks", s.State().Ticks)
	}
	return nil
}

func pollInterval(cfg *config.Config) time.Duration {
	ms := cfg.PollIntervalMs
	if ms < 20 {
		ms = 20
	}
	if ms > 200 {
		ms = 200
	}
	return time.Duration(ms) * time.Millisecond
}

func matchOptions(cfg *config.Config) marker.Options {
	return marker.Options{
		Tolerance:   cfg.ColorTolerance,
		Threshold:   cfg.MatchThreshold,
		ScanStep:    cfg.ScanStep,
		SampleStep:  cfg.SampleStep,
		QuickAlpha:  uint8(cfg.QuickAlpha),
		OpaqueAlpha: uint8(cfg.OpaqueAlpha),
	}
}

// Tick runs one detection step. Only the loop goroutine (or a test driving
// the scheduler by hand) may call it.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	cfg := s.cfg()
	start := s.now()
	s.tickSeq++
	rep := TickReport{Tick: s.tickSeq, At: start}
	st := s.state.Get()

	switch {
	case s.searcher == nil:
		rep.Skipped, rep.SkipReason = true, SkipInert
	case !st.Enabled:
		rep.Skipped, rep.SkipReason = true, SkipDisabled
	case s.overlay != nil && !s.overlay.TryAcquire(OwnerDetector):
		rep.Skipped, rep.SkipReason = true, SkipOverlay
	}
	if rep.Skipped {
		rep.State = st.PresenceState()
		rep.TickCount = st.TickCount
		rep.MissStreak = st.MissStreak
		s.notify(rep, st)
		return rep
	}
	if s.overlay != nil {
		defer s.overlay.Release(OwnerDetector)
	}

	tickCount := st.TickCount
	var res marker.Result
	region := capture.Region{X: cfg.Region.X, Y: cfg.Region.Y, Width: cfg.Region.Width, Height: cfg.Region.Height}
	frame, err := s.snaps.Snapshot(region)
	if err != nil {
		rep.CaptureErr = err
		s.dedup.reset()
		if s.logger != nil {
			s.logger.Debug("capture failed, counting as miss", "error", err)
		}
	} else {
		opt := matchOptions(cfg)
		if cfg.SkipUnchangedFrames && s.dedup.same(frame.Image) {
			rep.Reused = true
			res = s.lastRaw
		} else {
			if !cfg.SkipUnchangedFrames {
				s.dedup.reset()
			}
			res = s.searcher.Cheap(frame.Image, opt)
		}
		if !res.Found {
			tickCount++
			every := uint32(cfg.DeepScanEvery)
			if every == 0 {
				every = 1
			}
			if tickCount%every == 0 {
				rep.DeepScan = true
				res = s.searcher.Deep(frame.Image, opt, cfg.Scales, cfg.MinScalePx)
				if s.logger != nil {
					s.logger.Debug("deep scan", "found", res.Found, "scale", res.Scale, "tried", res.Tried)
				}
			}
		}
		if res.Found {
			tickCount = 0
		}
		s.lastRaw = res
		s.snaps.Release(frame)
	}

	rep.Found = res.Found
	rep.Via = res.Via
	rep.Scale = res.Scale
	rep.TickCount = tickCount
	rep.Fired = s.machine.Feed(res.Found, uint32(cfg.MissTolerance))
	rep.State = s.machine.State()
	rep.MissStreak = s.machine.MissStreak()

	if rep.Fired {
		s.edgeSeq++
		ev := trigger.Event{Seq: s.edgeSeq, At: start, Scale: res.Scale, Via: res.Via.String()}
		if s.dispatcher != nil {
			rep.Dispatched = s.dispatcher.Dispatch(ev)
		}
		if s.logger != nil {
			s.logger.Info("marker appeared", "seq", ev.Seq, "scale", res.Scale, "via", res.Via.String(), "dispatched", rep.Dispatched)
		}
	}

	cached, hasCache := s.searcher.Store().Cached()
	rep.Duration = s.now().Sub(start)
	next := s.state.Update(func(st *DetectorState) {
		st.Present = rep.State == presence.StatePresent
		st.MissStreak = rep.MissStreak
		st.TickCount = tickCount
		st.HasCache = hasCache
		st.CachedScale = cached.Scale
		st.Ticks++
		if rep.Fired {
			st.Triggers++
		}
		if rep.DeepScan {
			st.DeepScans++
		}
		st.LastFound = res.Found
		st.LastVia = res.Via
		st.LastTick = start
	})
	s.notify(rep, next)
	return rep
}

func (s *Scheduler) notify(rep TickReport, st DetectorState) {
	s.obsMu.RLock()
	obs := s.observer
	s.obsMu.RUnlock()
	for _, o := range obs {
		o.Observe(rep, st)
	}
}
