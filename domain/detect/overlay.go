package detect

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Owner names a requester of the foreground overlay.
type Owner string

const (
	OwnerDetector Owner = "detector"
	OwnerSelector Owner = "selector"
)

// OverlayLock is the one exclusive foreground overlay shared by the
// automatic detector and the manual region selector.
type OverlayLock struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	holder Owner
}

func NewOverlayLock() *OverlayLock {
	return &OverlayLock{sem: semaphore.NewWeighted(1)}
}

// TryAcquire takes the overlay for o if it is free.
func (l *OverlayLock) TryAcquire(o Owner) bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.setHolder(o)
	return true
}

// Acquire blocks until the overlay is free or ctx is done.
func (l *OverlayLock) Acquire(ctx context.Context, o Owner) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.setHolder(o)
	return nil
}

// Release frees the overlay if o holds it and reports whether it did.
func (l *OverlayLock) Release(o Owner) bool {
	l.mu.Lock()
	if l.holder != o {
		l.mu.Unlock()
		return false
	}
	l.holder = ""
	l.mu.Unlock()
	l.sem.Release(1)
	return true
}

// Holder returns the current owner, empty when free.
func (l *OverlayLock) Holder() Owner {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

func (l *OverlayLock) setHolder(o Owner) {
	l.mu.Lock()
	l.holder = o
	l.mu.Unlock()
}
