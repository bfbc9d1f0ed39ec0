package rabbit

import (
	"context"
	"errors"
	"sync"
)

// resourcePool is a bounded pool of broker resources. At most size items exist
// at any time, whether idle or checked out. acquire blocks while the pool is
// exhausted and replaces unhealthy idle items with fresh ones.
type resourcePool[T any] struct {
	create  func(ctx context.Context) (T, error)
	healthy func(T) bool
	destroy func(T) error

	idle  chan T
	slots chan struct{}

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newResourcePool[T any](size int, create func(context.Context) (T, error), healthy func(T) bool, destroy func(T) error) *resourcePool[T] {
	return &resourcePool[T]{
		create:  create,
		healthy: healthy,
		destroy: destroy,
		idle:    make(chan T, size),
		slots:   make(chan struct{}, size),
		done:    make(chan struct{}),
	}
}

func (p *resourcePool[T]) acquire(ctx context.Context) (T, error) {
	var zero T
	for {
		select {
		case <-p.done:
			return zero, ErrPoolClosed
		default:
		}

		// Reuse before creating.
		select {
		case item := <-p.idle:
			if p.healthy(item) {
				return item, nil
			}
			p.discard(item)
			continue
		default:
		}

		select {
		case item := <-p.idle:
			if p.healthy(item) {
				return item, nil
			}
			p.discard(item)
		case p.slots <- struct{}{}:
			item, err := p.create(ctx)
			if err != nil {
				<-p.slots
				return zero, err
			}
			return item, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-p.done:
			return zero, ErrPoolClosed
		}
	}
}

// release returns a checked out item. Unhealthy items, and every item
// released after close, are destroyed instead.
func (p *resourcePool[T]) release(item T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.healthy(item) {
		_ = p.destroy(item)
		<-p.slots
		return
	}
	p.idle <- item
}

// discard destroys a checked out item and frees its slot.
func (p *resourcePool[T]) discard(item T) {
	_ = p.destroy(item)
	<-p.slots
}

// inUse reports the number of live items, idle or checked out.
func (p *resourcePool[T]) inUse() int {
	return len(p.slots)
}

func (p *resourcePool[T]) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	var errs []error
	for {
		select {
		case item := <-p.idle:
			if err := p.destroy(item); err != nil {
				errs = append(errs, err)
			}
			<-p.slots
		default:
			return errors.Join(errs...)
		}
	}
}
