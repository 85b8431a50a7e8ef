package runloop

import (
	"sync"
)

// Loop serializes tasks onto a single goroutine. Posting is safe from
// any goroutine and never blocks the poster; the internal queue is
// unbounded so loop tasks can post follow-up tasks freely.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	closed bool
}

// New creates a stopped loop. Call Start to begin processing.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	go l.run()
}

// Post queues a task for execution on the loop goroutine. Returns false
// if the loop has been stopped and the task will never run.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Stop shuts the loop down after draining already-queued tasks and
// waits for the loop goroutine to exit. Tasks posted after Stop are
// rejected.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.quit)
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		for {
			task := l.pop()
			if task == nil {
				break
			}
			task()
		}

		select {
		case <-l.wake:
		case <-l.quit:
			// Drain whatever was queued before the stop.
			for {
				task := l.pop()
				if task == nil {
					return
				}
				task()
			}
		}
	}
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	task := l.queue[0]
	l.queue = l.queue[1:]
	return task
}
