package recognition

import (
	"sync"
	"time"
)

// loop runs posted operations one at a time, in order, on a single
// goroutine. post never blocks, so platform code may emit events from
// inside Start or Stop.
type loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newLoop() *loop {
	l := &loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *loop) run() {
	defer close(l.done)

	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 || l.closed {
				l.mu.Unlock()
				break
			}
			op := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			op()
		}
	}
}

func (l *loop) post(op func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, op)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return true
}

// call posts op and waits for it. Never call it from the loop itself.
func (l *loop) call(op func()) bool {
	finished := make(chan struct{})
	if !l.post(func() {
		op()
		close(finished)
	}) {
		return false
	}

	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// after schedules op on the loop once d has elapsed.
func (l *loop) after(d time.Duration, op func()) *time.Timer {
	return time.AfterFunc(d, func() { l.post(op) })
}

func (l *loop) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	close(l.quit)
	<-l.done
}
