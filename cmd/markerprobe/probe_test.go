package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"

	"github.com/soocke/pixel-cue/assets"
	"github.com/soocke/pixel-cue/config"
	"github.com/soocke/pixel-cue/domain/marker"
)

func bundledNeedle(t *testing.T) *image.NRGBA {
	t.Helper()
	n, err := marker.Decode(assets.MarkerPNG)
	if err != nil {
		t.Fatalf("decode bundled marker: %v", err)
	}
	return n
}

func writeScene(t *testing.T, dir, name string, needle *image.NRGBA, at *image.Point) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 80, 50))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xFF
	}
	if at != nil {
		b := needle.Bounds()
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				p := needle.NRGBAAt(x, y)
				if p.A == 0 {
					continue
				}
				img.SetNRGBA(at.X+x, at.Y+y, color.NRGBA{R: p.R, G: p.G, B: p.B, A: 255})
			}
		}
	}
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
	return path
}

func TestProbeReportsPerFile(t *testing.T) {
	dir := t.TempDir()
	needle := bundledNeedle(t)
	writeScene(t, dir, "a_hit.png", needle, &image.Point{X: 20, Y: 10})
	writeScene(t, dir, "b_miss.png", needle, nil)
	if err := os.WriteFile(filepath.Join(dir, "c_broken.png"), []byte("nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	files, err := expand([]string{filepath.Join(dir, "*.png")})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %v", files)
	}
	results, err := probe(context.Background(), needle, files, config.DefaultConfig(), 2)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	hit, miss, broken := results[0], results[1], results[2]
	if !hit.Found || hit.Via != "original" || hit.Scale != 1.0 {
		t.Fatalf("unexpected hit result %+v", hit)
	}
	if miss.Found || miss.Error != "" || miss.Tried < 2 {
		t.Fatalf("miss must run the deep scan, got %+v", miss)
	}
	if broken.Error == "" {
		t.Fatalf("expected decode error for broken file")
	}
	sum := summarize(results)
	if sum.Files != 3 || sum.Found != 1 || sum.Errors != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestProbeHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	needle := bundledNeedle(t)
	f := writeScene(t, dir, "a.png", needle, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := probe(ctx, needle, []string{f}, config.DefaultConfig(), 1); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestExpandDeduplicates(t *testing.T) {
	dir := t.TempDir()
	needle := bundledNeedle(t)
	f := writeScene(t, dir, "x.png", needle, nil)
	files, err := expand([]string{f, filepath.Join(dir, "*.png")})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one file, got %v", files)
	}
}

func TestWriteReportYAML(t *testing.T) {
	rep := Report{
		Marker:   "bundled",
		Settings: settingsFrom(config.DefaultConfig()),
		Summary:  Summary{Files: 1, Found: 1},
		Files:    []FileResult{{File: "a.png", Found: true, Via: "deep_scan", Scale: 1.1, Tried: 4}},
	}
	var buf bytes.Buffer
	if err := writeReport(&buf, rep); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "via: deep_scan") {
		t.Fatalf("unexpected yaml:\n%s", buf.String())
	}
	var back Report
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Files[0].Scale != 1.1 || back.Settings.ColorTolerance != 70 {
		t.Fatalf("unexpected round trip %+v", back)
	}
}

func TestRunRequiresFiles(t *testing.T) {
	if err := run("", "", 1, "", nil); err == nil {
		t.Fatalf("expected error without screenshots")
	}
}
