package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// Event is the payload of a rising edge. Pipelines re-capture whatever they
// need; the fields are informational.
type Event struct {
	Seq   uint64
	At    time.Time
	Scale float64
	Via   string
}

// Pipeline is the external work started on a rising edge.
type Pipeline interface {
	Run(ctx context.Context, ev Event) error
}

// PipelineFunc adapts a function to Pipeline.
type PipelineFunc func(ctx context.Context, ev Event) error

func (f PipelineFunc) Run(ctx context.Context, ev Event) error { return f(ctx, ev) }

// LogPipeline records that a dispatched edge reached the pipeline. The edge
// itself is logged by the scheduler.
type LogPipeline struct{ Logger *slog.Logger }

func (p LogPipeline) Run(_ context.Context, ev Event) error {
	if p.Logger != nil {
		p.Logger.Debug("trigger pipeline started", "seq", ev.Seq, "via", ev.Via)
	}
	return nil
}

// ErrNoCommand is returned by CommandPipeline without argv.
var ErrNoCommand = errors.New("trigger: empty command")

// CommandPipeline runs an external program per edge. The edge is passed in
// PIXEL_CUE_SEQ, PIXEL_CUE_SCALE and PIXEL_CUE_AT.
type CommandPipeline struct {
	Argv   []string
	Logger *slog.Logger
}

func (p CommandPipeline) Run(ctx context.Context, ev Event) error {
	if len(p.Argv) == 0 || p.Argv[0] == "" {
		return ErrNoCommand
	}
	cmd := exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...)
	cmd.Env = append(cmd.Environ(),
		"PIXEL_CUE_SEQ="+strconv.FormatUint(ev.Seq, 10),
		"PIXEL_CUE_SCALE="+strconv.FormatFloat(ev.Scale, 'f', 2, 64),
		"PIXEL_CUE_AT="+ev.At.Format(time.RFC3339Nano),
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("trigger command %q: %w", p.Argv[0], err)
	}
	if p.Logger != nil && len(out) > 0 {
		p.Logger.Debug("trigger command output", "seq", ev.Seq, "output", string(out))
	}
	return nil
}

// Chain runs pipelines in order and joins their errors.
type Chain []Pipeline

func (c Chain) Run(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range c {
		if p == nil {
			continue
		}
		if err := p.Run(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Pipeline = PipelineFunc(nil)
	_ Pipeline = LogPipeline{}
	_ Pipeline = CommandPipeline{}
	_ Pipeline = Chain(nil)
)
