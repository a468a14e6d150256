// Package bridge runs engine operations on a process-wide worker pool and
// presents each one to the caller either as a blocking call or as a promise
// settled from a worker goroutine. This is the synchronous facade over the
// inherently asynchronous engine: "*Sync" entry points park the caller until
// the pool finishes the work, "*Async" entry points return immediately with
// a pending Promise.
package bridge

import (
	"errors"
	"runtime"
	"sync"
)

// ErrRuntimeInit is returned when the shared runtime could not be started.
// It is fatal to the calling operation only, never process-wide.
var ErrRuntimeInit = errors.New("bridge: shared runtime failed to initialize")

// Dispatcher is a fixed pool of workers consuming submitted operations.
// Operations must not submit nested blocking work to the same dispatcher.
type Dispatcher struct {
	jobs chan func()
}

const queueDepth = 128

// New creates a dispatcher with the given number of workers. Most callers
// want Default instead.
func New(workers int) (*Dispatcher, error) {
	if workers <= 0 {
		return nil, ErrRuntimeInit
	}
	d := &Dispatcher{jobs: make(chan func(), queueDepth)}
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d, nil
}

func (d *Dispatcher) worker() {
	for job := range d.jobs {
		job()
	}
}

func (d *Dispatcher) submit(job func()) {
	d.jobs <- job
}

var (
	defaultOnce sync.Once
	defaultDisp *Dispatcher
	defaultErr  error
)

// Default returns the process-wide dispatcher, created lazily on first use.
// There is no teardown; process exit is the lifecycle boundary.
func Default() (*Dispatcher, error) {
	defaultOnce.Do(func() {
		defaultDisp, defaultErr = New(runtime.GOMAXPROCS(0))
	})
	return defaultDisp, defaultErr
}

// Do submits op and blocks the calling goroutine until it completes,
// returning op's result or failure synchronously.
func Do[T any](d *Dispatcher, op func() (T, error)) (T, error) {
	done := make(chan struct{})
	var val T
	var err error
	d.submit(func() {
		val, err = op()
		close(done)
	})
	<-done
	return val, err
}

// Do2 is Do for operations with no result value.
func Do2(d *Dispatcher, op func() error) error {
	_, err := Do(d, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// Spawn submits op without blocking. The returned promise settles exactly
// once, from a worker goroutine, with op's success or failure.
func Spawn[T any](d *Dispatcher, op func() (T, error)) *Promise[T] {
	p := newPromise[T]()
	d.submit(func() {
		p.settle(op())
	})
	return p
}
