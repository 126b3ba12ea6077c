//go:build !windows

package trigger

import (
	"context"
	"time"
)

func pressKey(context.Context, byte, time.Duration) error { return ErrKeyUnsupported }
