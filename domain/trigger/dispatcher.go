package trigger

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is reported by Submit after Close.
var ErrClosed = errors.New("trigger: dispatcher closed")

// ErrBusy is reported by Submit when the policy rejected the event.
var ErrBusy = errors.New("trigger: pipeline busy")

// Policy decides what happens to a rising edge while a previous run is in flight.
type Policy int

const (
	// PolicyDrop rejects new edges while one run is in flight.
	PolicyDrop Policy = iota
	// PolicyOverlap starts an independent run for every edge.
	PolicyOverlap
	// PolicyQueue runs edges one at a time through a bounded queue.
	PolicyQueue
)

func (p Policy) String() string {
	switch p {
	case PolicyOverlap:
		return "overlap"
	case PolicyQueue:
		return "queue"
	default:
		return "drop"
	}
}

// ParsePolicy maps a config value to a Policy. Unknown values mean PolicyDrop.
func ParsePolicy(s string) Policy {
	switch s {
	case "overlap":
		return PolicyOverlap
	case "queue":
		return PolicyQueue
	default:
		return PolicyDrop
	}
}

// Options configures a Dispatcher.
type Options struct {
	Policy     Policy
	QueueDepth int
	// Timeout bounds a single pipeline run; zero means none.
	Timeout time.Duration
}

// Stats summarises dispatcher activity for instrumentation.
type Stats struct {
	Accepted  uint64
	Dropped   uint64
	Completed uint64
	Failed    uint64
	InFlight  int64
}

// Dispatcher hands rising edges to a Pipeline without blocking the caller.
type Dispatcher struct {
	pipeline Pipeline
	opts     Options
	logger   *slog.Logger

	sem   *semaphore.Weighted
	queue chan Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	accepted  atomic.Uint64
	dropped   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	inFlight  atomic.Int64
}

// NewDispatcher builds a dispatcher; PolicyQueue starts its worker immediately.
func NewDispatcher(p Pipeline, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 4
	}
	d := &Dispatcher{pipeline: p, opts: opts, logger: logger}
	switch opts.Policy {
	case PolicyDrop:
		d.sem = semaphore.NewWeighted(1)
	case PolicyQueue:
		d.queue = make(chan Event, opts.QueueDepth)
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Policy reports the active policy.
func (d *Dispatcher) Policy() Policy { return d.opts.Policy }

// Dispatch submits ev and reports whether it was accepted. It never blocks.
func (d *Dispatcher) Dispatch(ev Event) bool {
	return d.Submit(ev) == nil
}

// Submit is Dispatch with the rejection reason.
func (d *Dispatcher) Submit(ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return ErrClosed
	}
	switch d.opts.Policy {
	case PolicyOverlap:
		d.spawn(ev, nil)
	case PolicyQueue:
		select {
		case d.queue <- ev:
		default:
			return d.reject(ev)
		}
	default:
		if !d.sem.TryAcquire(1) {
			return d.reject(ev)
		}
		d.spawn(ev, func() { d.sem.Release(1) })
	}
	d.accepted.Add(1)
	return nil
}

func (d *Dispatcher) reject(ev Event) error {
	d.dropped.Add(1)
	if d.logger != nil {
		d.logger.Debug("trigger dropped", "seq", ev.Seq, "policy", d.opts.Policy.String())
	}
	return ErrBusy
}

func (d *Dispatcher) spawn(ev Event, release func()) {
	d.wg.Add(1)
	d.inFlight.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inFlight.Add(-1)
		if release != nil {
			defer release()
		}
		d.run(ev)
	}()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.inFlight.Add(1)
		d.run(ev)
		d.inFlight.Add(-1)
	}
}

func (d *Dispatcher) run(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			if d.logger != nil {
				d.logger.Error("trigger pipeline panic", "seq", ev.Seq, "error", r, "stack", string(debug.Stack()))
			}
		}
	}()
	ctx := context.Background()
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	if err := d.pipeline.Run(ctx, ev); err != nil {
		d.failed.Add(1)
		if d.logger != nil {
			d.logger.Warn("trigger pipeline failed", "seq", ev.Seq, "error", err, "elapsed", time.Since(start))
		}
		return
	}
	d.completed.Add(1)
	if d.logger != nil {
		d.logger.Debug("trigger pipeline done", "seq", ev.Seq, "elapsed", time.Since(start))
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Accepted:  d.accepted.Load(),
		Dropped:   d.dropped.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		InFlight:  d.inFlight.Load(),
	}
}

// Close stops accepting events and waits for runs already started or queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.queue != nil {
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
