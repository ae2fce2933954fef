// Package stream bounds the number of large-file streams that may be in flight
// at once. Acquisition never blocks: a full limiter is reported to the caller,
// which answers 503 instead of queueing.
package stream

import (
	"sync"

	"go.uber.org/atomic"
)

// Limiter is a non-blocking counting semaphore.
type Limiter struct {
	max    int64
	active atomic.Int64
}

// NewLimiter 创建最多允许 max 个并发流的限制器。
func NewLimiter(max int) *Limiter {
	if max < 0 {
		max = 0
	}
	return &Limiter{max: int64(max)}
}

// TryAcquire reserves a slot if one is free. The returned Slot must be
// released exactly once; Release is idempotent so deferring it on every exit
// path is safe.
func (l *Limiter) TryAcquire() (*Slot, bool) {
	for {
		current := l.active.Load()
		if current >= l.max {
			return nil, false
		}
		if l.active.CompareAndSwap(current, current+1) {
			return &Slot{limiter: l}, true
		}
	}
}

// Active 返回当前占用的流数量。
func (l *Limiter) Active() int64 {
	return l.active.Load()
}

// Max 返回允许的最大并发流数量。
func (l *Limiter) Max() int64 {
	return l.max
}

// Slot is a held stream reservation.
type Slot struct {
	limiter *Limiter
	once    sync.Once
}

// Release returns the slot to its limiter. Calls after the first are no-ops.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.limiter.active.Dec()
	})
}
