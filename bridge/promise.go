package bridge

import "sync"

// Promise is a deferred result settled exactly once by the dispatcher.
type Promise[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	val       T
	err       error
	callbacks []func(T, error)
}

func newPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

func (p *Promise[T]) settle(val T, err error) {
	p.mu.Lock()
	p.val, p.err = val, err
	cbs := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	// Callbacks run on the settling worker's goroutine, outside the lock.
	for _, cb := range cbs {
		cb(val, err)
	}
}

// Await blocks until the promise settles and returns its outcome.
func (p *Promise[T]) Await() (T, error) {
	<-p.done
	return p.val, p.err
}

// OnSettle registers fn to run when the promise settles. If it already has,
// fn runs immediately on the calling goroutine; otherwise it runs on the
// worker goroutine that settles the promise.
func (p *Promise[T]) OnSettle(fn func(T, error)) {
	p.mu.Lock()
	select {
	case <-p.done:
		val, err := p.val, p.err
		p.mu.Unlock()
		fn(val, err)
	default:
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
	}
}

// Settled reports whether the promise has already settled.
func (p *Promise[T]) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
