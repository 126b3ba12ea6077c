package main

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/soocke/pixel-cue/config"
	"github.com/soocke/pixel-cue/domain/marker"
)

// Report is the YAML document written by the probe.
type Report struct {
	Marker   string       `yaml:"marker"`
	Settings Settings     `yaml:"settings"`
	Summary  Summary      `yaml:"summary"`
	Files    []FileResult `yaml:"files"`
}

type Settings struct {
	ColorTolerance int       `yaml:"color_tolerance"`
	MatchThreshold float64   `yaml:"match_threshold"`
	ScanStep       int       `yaml:"scan_step"`
	SampleStep     int       `yaml:"sample_step"`
	Scales         []float64 `yaml:"scales"`
	MinScalePx     int       `yaml:"min_scale_px"`
}

type Summary struct {
	Files  int `yaml:"files"`
	Found  int `yaml:"found"`
	Errors int `yaml:"errors"`
}

// FileResult is the outcome for one screenshot.
type FileResult struct {
	File      string  `yaml:"file"`
	Found     bool    `yaml:"found"`
	Via       string  `yaml:"via,omitempty"`
	Scale     float64 `yaml:"scale,omitempty"`
	X         int     `yaml:"x,omitempty"`
	Y         int     `yaml:"y,omitempty"`
	Tried     int     `yaml:"tried"`
	ElapsedMs float64 `yaml:"elapsed_ms"`
	Error     string  `yaml:"error,omitempty"`
}

func settingsFrom(cfg *config.Config) Settings {
	return Settings{
		ColorTolerance: cfg.ColorTolerance,
		MatchThreshold: cfg.MatchThreshold,
		ScanStep:       cfg.ScanStep,
		SampleStep:     cfg.SampleStep,
		Scales:         cfg.Scales,
		MinScalePx:     cfg.MinScalePx,
	}
}

func optionsFrom(cfg *config.Config) marker.Options {
	return marker.Options{
		Tolerance:   cfg.ColorTolerance,
		Threshold:   cfg.MatchThreshold,
		ScanStep:    cfg.ScanStep,
		SampleStep:  cfg.SampleStep,
		QuickAlpha:  uint8(cfg.QuickAlpha),
		OpaqueAlpha: uint8(cfg.OpaqueAlpha),
	}
}

// expand resolves glob patterns into a sorted, de-duplicated file list.
func expand(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(p); err == nil {
				matches = []string{p}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// loadHaystack decodes an image file into the RGBA layout the matcher expects.
func loadHaystack(path string) (*image.RGBA, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst, nil
}

// probe runs a full search (cache, original and deep scan) over every file
// with at most parallel files in flight. Each file gets its own template
// slot so results do not depend on processing order.
func probe(ctx context.Context, needle *image.NRGBA, files []string, cfg *config.Config, parallel int) ([]FileResult, error) {
	results := make([]FileResult, len(files))
	opt := optionsFrom(cfg)
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			res := FileResult{File: f}
			hay, err := loadHaystack(f)
			if err != nil {
				res.Error = err.Error()
				results[i] = res
				return nil
			}
			s := marker.NewSearcher(marker.NewTemplateStore(needle))
			r := s.Search(hay, opt, cfg.Scales, cfg.MinScalePx, true)
			res.Found = r.Found
			res.Tried = r.Tried
			if r.Found {
				res.Via = r.Via.String()
				res.Scale = r.Scale
				res.X, res.Y = r.At.X, r.At.Y
			}
			res.ElapsedMs = float64(time.Since(start).Microseconds()) / 1000
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func summarize(results []FileResult) Summary {
	s := Summary{Files: len(results)}
	for _, r := range results {
		if r.Error != "" {
			s.Errors++
		}
		if r.Found {
			s.Found++
		}
	}
	return s
}
