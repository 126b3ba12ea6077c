package trigger

import (
	"context"
	"errors"
	"runtime"
	"testing"
)

func TestParseKey(t *testing.T) {
	cases := []struct {
		in   string
		want byte
	}{
		{"F1", 0x70},
		{"f3", 0x72},
		{"F9", 0x78},
		{"F10", 0x79},
		{"F12", 0x7B},
		{" r ", 'R'},
		{"Z", 'Z'},
	}
	for _, c := range cases {
		got, err := ParseKey(c.in)
		if err != nil || got != c.want {
			t.Fatalf("ParseKey(%q) = %#x, %v; want %#x", c.in, got, err, c.want)
		}
	}
	for _, bad := range []string{"", "F0", "F13", "1", "ESC"} {
		if _, err := ParseKey(bad); err == nil {
			t.Fatalf("ParseKey(%q) must fail", bad)
		}
	}
}

func TestKeyPipelineUnsupported(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("synthesises real input on windows")
	}
	err := KeyPipeline{Key: 'R'}.Run(context.Background(), Event{Seq: 1})
	if !errors.Is(err, ErrKeyUnsupported) {
		t.Fatalf("expected ErrKeyUnsupported, got %v", err)
	}
}
