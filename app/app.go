package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soocke/pixel-cue/debug"
)

const (
	goroutineLogInterval = 10 * time.Second
	memLogInterval       = 30 * time.Second
)

// Run starts config watching, the detection loop and, when configured, the
// status server. It returns after ctx is done and every in-flight trigger
// pipeline has finished.
func (c *Container) Run(ctx context.Context) error {
	cfg := c.Config.Current()
	c.Config.Watch()
	if cfg.Debug {
		debug.StartGoroutineLogger(ctx, goroutineLogInterval, c.Logger)
		debug.StartMemLogger(ctx, memLogInterval, c.Logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Scheduler.Run(gctx) })
	if cfg.StatusAddr != "" {
		g.Go(func() error { return c.Status.ListenAndServe(gctx, cfg.StatusAddr) })
	}
	err := g.Wait()

	c.Dispatcher.Close()
	st := c.Scheduler.State()
	ds := c.Dispatcher.Stats()
	c.Logger.Info("engine stopped",
		"ticks", st.Ticks,
		"triggers", st.Triggers,
		"dispatch_completed", ds.Completed,
		"dispatch_failed", ds.Failed,
		"dispatch_dropped", ds.Dropped,
	)
	return err
}
