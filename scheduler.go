package replica

import (
	"context"
	"sync"
	"time"
)

// Scheduler invokes a callback on a fixed cadence until stopped.
type Scheduler interface {
	Every(period time.Duration, fn func()) (stop func())
}

// Poster accepts work to run on a single logical thread.
type Poster interface {
	Post(fn func())
}

// TickerScheduler is a Scheduler backed by time.Ticker. When Poster is set,
// ticks are posted to it instead of running on the ticker's goroutine.
type TickerScheduler struct {
	Poster Poster
}

// Every starts calling fn every period.
func (s TickerScheduler) Every(period time.Duration, fn func()) func() {
	ticker := time.NewTicker(period)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.Poster != nil {
					s.Poster.Post(fn)
				} else {
					fn()
				}
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Loop is an unbounded work queue run by one goroutine. Everything touching
// a Store, transport handlers and flush ticks included, is posted to the
// Loop, so the replicas need no locks. A listener may post follow-up work
// instead of reentering the code that fired it.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// NewLoop creates an idle loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn. It never blocks; posts after Run returns are discarded.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes posted work until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.closed = true
			l.queue = nil
			l.mu.Unlock()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Drain executes queued work, including work posted meanwhile, on the
// calling goroutine and returns how many functions ran.
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
		n++
	}
}
