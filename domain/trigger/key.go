package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrKeyUnsupported is returned by KeyPipeline where key synthesis is not
// available.
var ErrKeyUnsupported = errors.New("trigger: key press unsupported on this platform")

// ParseKey converts a key token ("F3", "R") into a virtual-key code.
// F1..F12 and single letters A..Z are recognised.
func ParseKey(token string) (byte, error) {
	k := strings.ToUpper(strings.TrimSpace(token))
	switch {
	case len(k) == 1 && k[0] >= 'A' && k[0] <= 'Z':
		return k[0], nil
	case len(k) == 2 && k[0] == 'F' && k[1] >= '1' && k[1] <= '9':
		return 0x70 + (k[1] - '1'), nil // VK_F1=0x70
	case k == "F10":
		return 0x79, nil
	case k == "F11":
		return 0x7A, nil
	case k == "F12":
		return 0x7B, nil
	}
	return 0, fmt.Errorf("trigger: unknown key %q", token)
}

// KeyPipeline presses a key on every edge, for pipelines bound to a hotkey.
type KeyPipeline struct {
	Key    byte
	Hold   time.Duration
	Logger *slog.Logger
}

func (p KeyPipeline) Run(ctx context.Context, ev Event) error {
	hold := p.Hold
	if hold <= 0 {
		hold = 40 * time.Millisecond
	}
	if err := pressKey(ctx, p.Key, hold); err != nil {
		return err
	}
	if p.Logger != nil {
		p.Logger.Debug("trigger key pressed", "seq", ev.Seq, "vk", p.Key)
	}
	return nil
}
