package presentation

import (
	"sync"

	"go.uber.org/zap"
)

// Dispatcher runs posted tasks one at a time on a single goroutine, the only
// goroutine allowed to touch presentation state.
type Dispatcher struct {
	tasks chan func()
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	urgent []func()
	wake   chan struct{}

	logger *zap.SugaredLogger
}

// NewDispatcher starts the owning goroutine with a queue of the given size.
func NewDispatcher(queue int, logger *zap.SugaredLogger) *Dispatcher {
	if queue <= 0 {
		queue = 1
	}
	d := &Dispatcher{
		tasks:  make(chan func(), queue),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.runUrgent()
		select {
		case <-d.wake:
		case fn := <-d.tasks:
			d.runUrgent()
			d.exec(fn)
		case <-d.stop:
			return
		}
	}
}

func (d *Dispatcher) runUrgent() {
	d.mu.Lock()
	batch := d.urgent
	d.urgent = nil
	d.mu.Unlock()
	for _, fn := range batch {
		d.exec(fn)
	}
}

func (d *Dispatcher) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("UI task panicked", "panic", r)
		}
	}()
	fn()
}

// Post queues fn. It never blocks: a full queue or a stopped dispatcher
// drops the task and returns false.
func (d *Dispatcher) Post(fn func()) bool {
	select {
	case <-d.stop:
		return false
	default:
	}
	select {
	case d.tasks <- fn:
		return true
	default:
		d.logger.Debugw("UI queue full, task dropped")
		return false
	}
}

// PostUrgent queues fn ahead of regular tasks. It never blocks and never
// drops for lack of space; it returns false only once the dispatcher stopped.
func (d *Dispatcher) PostUrgent(fn func()) bool {
	d.mu.Lock()
	select {
	case <-d.stop:
		d.mu.Unlock()
		return false
	default:
	}
	d.urgent = append(d.urgent, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush waits until every task queued before the call has run. It returns
// false if the dispatcher stopped first.
func (d *Dispatcher) Flush() bool {
	ran := make(chan struct{})
	select {
	case d.tasks <- func() { close(ran) }:
	case <-d.stop:
		return false
	}
	select {
	case <-ran:
		return true
	case <-d.done:
		return false
	}
}

// Stop ends the owning goroutine. Queued tasks that have not started are
// discarded.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}
