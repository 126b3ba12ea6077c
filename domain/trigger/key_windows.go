//go:build windows

package trigger

import (
	"context"
	"time"

	"golang.org/x/sys/windows"
)

var (
	user32     = windows.NewLazySystemDLL("user32.dll")
	keybdEvent = user32.NewProc("keybd_event")
)

const keyEventKeyUp = 0x0002

// pressKey sends key down, waits hold and sends key up. The key is always
// released, even when ctx ends during the hold.
func pressKey(ctx context.Context, vk byte, hold time.Duration) error {
	if err := keybdEvent.Find(); err != nil {
		return err
	}
	_, _, _ = keybdEvent.Call(uintptr(vk), 0, 0, 0)
	t := time.NewTimer(hold)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	_, _, _ = keybdEvent.Call(uintptr(vk), 0, keyEventKeyUp, 0)
	return ctx.Err()
}
