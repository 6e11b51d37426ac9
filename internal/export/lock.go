package export

import (
	"context"
	"sync"
	"time"

	"github.com/joseph-ayodele/tickets-tracker/internal/aggregate"
)

// RangeLock serializes work on overlapping billing weeks. A range holds every
// week from the week of its first day to the week of its last day, and all
// of them are taken or none.
type RangeLock struct {
	mu   sync.Mutex
	held map[time.Time]chan struct{}
}

func NewRangeLock() *RangeLock {
	return &RangeLock{held: make(map[time.Time]chan struct{})}
}

func weeksOf(from, to time.Time) []time.Time {
	var out []time.Time
	last := aggregate.WeekStart(aggregate.Date(to))
	for w := aggregate.WeekStart(aggregate.Date(from)); !w.After(last); w = w.AddDate(0, 0, 7) {
		out = append(out, w)
	}
	return out
}

// Acquire blocks until every week of [from, to] is free or ctx is done. The
// returned func releases the range and is safe to call more than once.
func (l *RangeLock) Acquire(ctx context.Context, from, to time.Time) (func(), error) {
	weeks := weeksOf(from, to)
	for {
		l.mu.Lock()
		var busy chan struct{}
		for _, w := range weeks {
			if ch, ok := l.held[w]; ok {
				busy = ch
				break
			}
		}
		if busy == nil {
			done := make(chan struct{})
			for _, w := range weeks {
				l.held[w] = done
			}
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					for _, w := range weeks {
						delete(l.held, w)
					}
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Held reports whether any week of [from, to] is locked.
func (l *RangeLock) Held(from, to time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range weeksOf(from, to) {
		if _, ok := l.held[w]; ok {
			return true
		}
	}
	return false
}
