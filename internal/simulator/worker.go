package simulator

import (
	"sync"
	"time"

	"github.com/tphakala/camhal/internal/logger"
)

// task is one unit of simulated hardware work. discard runs instead of run
// when the worker stops before the task executes.
type task struct {
	delay   time.Duration
	run     func()
	discard func()
}

func (t task) drop() {
	if t.discard != nil {
		t.discard()
	}
}

// worker executes tasks in order on its own goroutine. The queue is
// unbounded so enqueue never blocks the caller, which may hold the device
// lock. A stopped worker can be started again.
type worker struct {
	name string

	mu      sync.Mutex
	queue   []task
	running bool
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func newWorker(name string) *worker {
	return &worker{name: name}
}

func (w *worker) start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.wake = make(chan struct{}, 1)
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(w.wake, w.quit, w.done)
}

// enqueue adds t to the queue. It reports false when the worker is stopped.
func (w *worker) enqueue(t task) bool {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, t)
	wake := w.wake
	w.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
	return true
}

// pending returns the number of queued tasks not yet started
func (w *worker) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// stop halts the goroutine and discards queued tasks. It waits for a task
// already running to return. Calling stop on a stopped worker is a no-op.
func (w *worker) stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.quit)
	done := w.done
	dropped := w.queue
	w.queue = nil
	w.mu.Unlock()

	<-done
	for _, t := range dropped {
		t.drop()
	}
	if len(dropped) > 0 {
		getLogger().Debug("worker stopped with queued work discarded",
			logger.String("worker", w.name),
			logger.Int("discarded", len(dropped)))
	}
}

func (w *worker) next() (task, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return task{}, false
	}
	t := w.queue[0]
	w.queue[0] = task{}
	w.queue = w.queue[1:]
	return t, true
}

func (w *worker) loop(wake <-chan struct{}, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		t, ok := w.next()
		if !ok {
			select {
			case <-wake:
				continue
			case <-quit:
				return
			}
		}

		if t.delay > 0 {
			timer := time.NewTimer(t.delay)
			select {
			case <-timer.C:
			case <-quit:
				timer.Stop()
				t.drop()
				return
			}
		}

		select {
		case <-quit:
			t.drop()
			return
		default:
			t.run()
		}
	}
}
