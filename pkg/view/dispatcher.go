package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrClosed is returned for work submitted after the dispatcher stopped.
	ErrClosed = errors.New("view closed")

	errPanicked = errors.New("dispatched function panicked")
)

// Dispatcher runs posted functions one at a time on a single goroutine.
// Post never blocks, so callbacks may post further work.
type Dispatcher struct {
	mu      sync.Mutex
	pending []func()
	closed  bool

	wake chan struct{}
	done chan struct{}
	exit chan struct{}
}

// NewDispatcher starts the dispatch goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}
	go d.loop()
	return d
}

// Post queues fn. It reports false when the dispatcher is closed.
func (d *Dispatcher) Post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.pending = append(d.pending, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the dispatch goroutine and waits for its result.
// It must not be called from the dispatch goroutine itself.
func (d *Dispatcher) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	posted := d.Post(func() {
		err := errPanicked
		defer func() { result <- err }()
		err = fn()
	})
	if !posted {
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.exit:
		select {
		case err := <-result:
			return err
		default:
			return ErrClosed
		}
	}
}

// Close stops the goroutine after the currently running function returns.
// Queued functions are dropped. Like Do, it must not run on the dispatch goroutine.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.pending = nil
	d.mu.Unlock()

	close(d.done)
	<-d.exit
}

func (d *Dispatcher) loop() {
	defer close(d.exit)
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			if d.closed || len(d.pending) == 0 {
				d.mu.Unlock()
				break
			}
			fn := d.pending[0]
			d.pending = d.pending[1:]
			d.mu.Unlock()

			d.run(fn)
		}
	}
}

func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("View: Dispatched function panicked", "panic", r)
		}
	}()
	fn()
}
