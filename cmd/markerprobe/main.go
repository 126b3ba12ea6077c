// Command markerprobe runs the marker matcher over saved screenshots and
// writes a YAML report, for tuning tolerance, threshold and scales offline.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/soocke/pixel-cue/assets"
	"github.com/soocke/pixel-cue/config"
	"github.com/soocke/pixel-cue/domain/marker"
)

func main() {
	cfgPath := flag.String("config", "", "JSON config supplying match settings (defaults when empty)")
	markerPath := flag.String("marker", "", "marker image (bundled marker when empty)")
	parallel := flag.Int("parallel", runtime.NumCPU(), "files processed concurrently")
	out := flag.String("out", "", "report path (stdout when empty)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(*cfgPath, *markerPath, *parallel, *out, flag.Args()); err != nil {
		logger.Error("markerprobe failed", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath, markerPath string, parallel int, out string, patterns []string) error {
	if len(patterns) == 0 {
		return fmt.Errorf("no screenshots given")
	}
	cfg := config.DefaultConfig()
	if cfgPath != "" {
		c, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	if markerPath != "" {
		cfg.MarkerPath = markerPath
	}
	raw, override, err := assets.MarkerBytes(cfg.MarkerPath)
	if err != nil {
		return err
	}
	needle, err := marker.Decode(raw)
	if err != nil {
		return err
	}
	files, err := expand(patterns)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	results, err := probe(ctx, needle, files, cfg, parallel)
	if err != nil {
		return err
	}

	name := "bundled"
	if override {
		name = cfg.MarkerPath
	}
	rep := Report{Marker: name, Settings: settingsFrom(cfg), Summary: summarize(results), Files: results}

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return writeReport(w, rep)
}

func writeReport(w io.Writer, rep Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return err
	}
	return enc.Close()
}
