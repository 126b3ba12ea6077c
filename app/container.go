// Package app assembles the engine from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/soocke/pixel-cue/assets"
	"github.com/soocke/pixel-cue/config"
	"github.com/soocke/pixel-cue/domain/capture"
	"github.com/soocke/pixel-cue/domain/detect"
	"github.com/soocke/pixel-cue/domain/marker"
	"github.com/soocke/pixel-cue/domain/trigger"
	"github.com/soocke/pixel-cue/status"
)

// Container holds every wired component. Searcher is nil when the marker
// could not be loaded; the scheduler is then inert for the session.
type Container struct {
	Config     *config.Watcher
	Logger     *slog.Logger
	Snapshots  *capture.Snapshotter
	Searcher   *marker.Searcher
	Dispatcher *trigger.Dispatcher
	Overlay    *detect.OverlayLock
	Scheduler  *detect.Scheduler
	Registry   *prometheus.Registry
	Metrics    *status.Metrics
	Status     *status.Server
}

// Options overrides the capture backend, for tests and the probe tool.
type Options struct {
	Grabber capture.Grabber
}

// BuildContainer constructs all components from the watcher's current config.
// Marker problems are not fatal; capture backend problems are.
func BuildContainer(w *config.Watcher, logger *slog.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := w.Current()
	c := &Container{Config: w, Logger: logger}

	grabber := opts.Grabber
	if grabber == nil {
		g, err := capture.NewGrabber(cfg.CaptureBackend)
		if err != nil {
			return nil, fmt.Errorf("app: capture backend %q: %w", cfg.CaptureBackend, err)
		}
		grabber = g
	}
	c.Snapshots = capture.NewSnapshotter(grabber, logger)

	c.Searcher = loadSearcher(cfg.MarkerPath, logger)
	c.Dispatcher = trigger.NewDispatcher(buildPipeline(cfg, logger), trigger.Options{
		Policy:     trigger.ParsePolicy(cfg.DispatchPolicy),
		QueueDepth: cfg.DispatchQueue,
		Timeout:    time.Duration(cfg.TriggerTimeoutMs) * time.Millisecond,
	}, logger)
	c.Overlay = detect.NewOverlayLock()

	c.Scheduler = detect.NewScheduler(detect.Deps{
		Config:     w.Current,
		Snapshots:  c.Snapshots,
		Searcher:   c.Searcher,
		Dispatcher: c.Dispatcher,
		Overlay:    c.Overlay,
		Logger:     logger,
	})

	c.Registry = prometheus.NewRegistry()
	m, err := status.NewMetrics(c.Registry)
	if err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}
	c.Metrics = m
	c.Scheduler.AddObserver(m)

	c.Status = status.New(status.Deps{
		Detector:  c.Scheduler,
		Dispatch:  c.Dispatcher,
		Capture:   c.Snapshots,
		Snapshots: c.Snapshots,
		Config:    w.Current,
		Gatherer:  c.Registry,
		Selection: c,
		Logger:    logger,
	})
	c.Scheduler.AddObserver(c.Status)

	c.watchConfig(cfg)
	return c, nil
}

// loadSearcher decodes the marker once for the session. Any failure leaves
// detection inert instead of stopping the process.
func loadSearcher(path string, logger *slog.Logger) *marker.Searcher {
	raw, override, err := assets.MarkerBytes(path)
	if err != nil {
		logger.Warn("marker override unreadable, using bundled marker", "path", path, "error", err)
	}
	store, err := marker.LoadTemplateStore(raw)
	if err != nil && override {
		logger.Warn("marker override failed to decode, using bundled marker", "path", path, "error", err)
		store, err = marker.LoadTemplateStore(assets.MarkerPNG)
	}
	if err != nil {
		logger.Error("marker unavailable", "error", err)
		return nil
	}
	b := store.Original().Bounds()
	logger.Info("marker loaded", "override", override, "width", b.Dx(), "height", b.Dy())
	return marker.NewSearcher(store)
}

func buildPipeline(cfg *config.Config, logger *slog.Logger) trigger.Pipeline {
	chain := trigger.Chain{trigger.LogPipeline{Logger: logger}}
	if len(cfg.TriggerCommand) > 0 {
		chain = append(chain, trigger.CommandPipeline{Argv: cfg.TriggerCommand, Logger: logger})
	}
	if cfg.TriggerKey != "" {
		vk, err := trigger.ParseKey(cfg.TriggerKey)
		if err != nil {
			logger.Warn("trigger key ignored", "key", cfg.TriggerKey, "error", err)
		} else {
			chain = append(chain, trigger.KeyPipeline{Key: vk, Logger: logger})
		}
	}
	return chain
}

// watchConfig follows the enable flag across reloads. Settings read once at
// start are reported as needing a restart.
func (c *Container) watchConfig(initial *config.Config) {
	prev := initial.Clone()
	c.Config.OnChange(func(next *config.Config) {
		if next.Enabled != prev.Enabled {
			c.Scheduler.SetEnabled(next.Enabled)
			c.Logger.Info("detection toggled by config", "enabled", next.Enabled)
		}
		if restartNeeded(prev, next) {
			c.Logger.Warn("config change takes effect after restart",
				"capture_backend", next.CaptureBackend, "dispatch_policy", next.DispatchPolicy, "marker_path", next.MarkerPath)
		}
		prev = next.Clone()
	})
}

func restartNeeded(a, b *config.Config) bool {
	if a.CaptureBackend != b.CaptureBackend || a.MarkerPath != b.MarkerPath || a.DispatchPolicy != b.DispatchPolicy {
		return true
	}
	if a.DispatchQueue != b.DispatchQueue || a.TriggerTimeoutMs != b.TriggerTimeoutMs || a.StatusAddr != b.StatusAddr || a.TriggerKey != b.TriggerKey {
		return true
	}
	if len(a.TriggerCommand) != len(b.TriggerCommand) {
		return true
	}
	for i := range a.TriggerCommand {
		if a.TriggerCommand[i] != b.TriggerCommand[i] {
			return true
		}
	}
	return false
}

// ErrSelectionBusy is returned when the overlay is already held by a
// selector or could not be taken in time.
var ErrSelectionBusy = errors.New("app: overlay busy")

// BeginManualSelection takes the foreground overlay for the region selector,
// waiting for an in-flight tick until ctx is done. Detection ticks are
// skipped until release is called.
func (c *Container) BeginManualSelection(ctx context.Context) (release func(), err error) {
	if c.Overlay.Holder() == detect.OwnerSelector {
		return nil, ErrSelectionBusy
	}
	if err := c.Overlay.Acquire(ctx, detect.OwnerSelector); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSelectionBusy, err)
	}
	c.Logger.Info("manual selection started")
	var once sync.Once
	return func() {
		once.Do(func() {
			c.Overlay.Release(detect.OwnerSelector)
			c.Logger.Info("manual selection ended")
		})
	}, nil
}

// ApplyRegion publishes a region picked by the selector and writes it to the
// config file. The remembered variant is dropped since it was learned on the
// old region.
func (c *Container) ApplyRegion(r capture.Region) error {
	if err := r.Validate(); err != nil {
		return err
	}
	prev := c.Config.Current().Region
	next := config.Region{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	_, err := c.Config.Persist(func(cfg *config.Config) { cfg.Region = next })
	if prev != next && c.Searcher != nil {
		c.Searcher.Store().Forget()
	}
	if err != nil {
		c.Logger.Warn("capture region not saved", "path", c.Config.Path(), "error", err)
		return err
	}
	c.Logger.Info("capture region updated", "x", r.X, "y", r.Y, "width", r.Width, "height", r.Height)
	return nil
}
