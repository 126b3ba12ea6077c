package assets

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestMarkerBytesFallsBackToBundled(t *testing.T) {
	raw, override, err := MarkerBytes(filepath.Join(t.TempDir(), "missing.png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if override || !bytes.Equal(raw, MarkerPNG) {
		t.Fatalf("expected bundled marker")
	}
}

func TestMarkerBytesUsesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.png")
	if err := os.WriteFile(path, []byte("custom"), 0o644); err != nil {
		t.Fatal(err)
	}
	raw, override, err := MarkerBytes(path)
	if err != nil || !override || string(raw) != "custom" {
		t.Fatalf("expected override bytes, got %q override=%v err=%v", raw, override, err)
	}
}
