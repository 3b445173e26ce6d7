package core

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultMaxConcurrentExports is the default limit for parallel exports.
const DefaultMaxConcurrentExports = 3

// DefaultExportWaitTime is how long an export waits for a slot before ErrTooManyExports.
const DefaultExportWaitTime = 10 * time.Second

// ExportLimiter bounds how many exports stream at once. Exports hold a
// database connection for their whole duration, so the pool must not be
// drained by downloads.
type ExportLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewExportLimiter creates a limiter allowing maxConcurrent simultaneous exports.
func NewExportLimiter(maxConcurrent int, maxWait time.Duration) *ExportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentExports
	}
	if maxWait <= 0 {
		maxWait = DefaultExportWaitTime
	}
	return &ExportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits up to the configured time for a slot. The caller must
// Release after a nil return.
func (l *ExportLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return ErrTooManyExports
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot only if one is free.
func (l *ExportLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *ExportLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// Active returns the number of exports in progress.
func (l *ExportLimiter) Active() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *ExportLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// WaitForDrain blocks until no export is running or ctx is done.
func (l *ExportLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.Active() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
