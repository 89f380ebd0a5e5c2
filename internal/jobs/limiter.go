package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when no engine slot frees up within the queue timeout.
var ErrBusy = errors.New("too many concurrent conversions")

// Limiter bounds the number of engine runs executing at once. Callers beyond
// the limit wait up to the queue timeout and are then rejected.
type Limiter struct {
	sem  *semaphore.Weighted
	size int
	wait time.Duration
}

func NewLimiter(size int, wait time.Duration) *Limiter {
	if size < 1 {
		size = 1
	}
	return &Limiter{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
		wait: wait,
	}
}

// Size returns the configured number of slots.
func (l *Limiter) Size() int { return l.size }

// Acquire takes a slot. The returned release func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l.wait <= 0 {
		if !l.sem.TryAcquire(1) {
			return nil, ErrBusy
		}
		return l.releaseFunc(), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBusy
	}
	return l.releaseFunc(), nil
}

func (l *Limiter) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.sem.Release(1) })
	}
}
