// Package observable holds a single value and broadcasts every change to
// subscribers. A new subscriber receives the current value first. Slow
// subscribers only ever see the latest value; intermediate ones are dropped.
package observable

import (
	"context"
	"sync"
)

type Value[T any] struct {
	mu      sync.Mutex
	current T
	clone   func(T) T
	subs    map[chan T]struct{}
}

// NewValue creates a Value. clone, if non-nil, is applied to every value handed
// out so readers never share memory with the held value.
func NewValue[T any](initial T, clone func(T) T) *Value[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Value[T]{current: initial, clone: clone, subs: make(map[chan T]struct{})}
}

func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.clone(v.current)
}

// Set replaces the value and notifies subscribers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = val
	v.broadcast()
}

// Update computes the next value from the current one and publishes it. fn
// runs under the lock and must not call back into v.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = fn(v.current)
	v.broadcast()
	return v.clone(v.current)
}

func (v *Value[T]) broadcast() {
	for ch := range v.subs {
		offer(ch, v.clone(v.current))
	}
}

// offer replaces whatever is buffered in ch with val. Only the holder of the
// owning lock sends on ch, so the send never blocks.
func offer[T any](ch chan T, val T) {
	select {
	case <-ch:
	default:
	}
	ch <- val
}

// Subscribe returns a channel that yields the current value and then every
// later one. The channel is closed once ctx is done.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	v.mu.Lock()
	v.subs[ch] = struct{}{}
	ch <- v.clone(v.current)
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.subs, ch)
		close(ch)
		v.mu.Unlock()
	}()
	return ch
}

// Map derives a stream by applying fn to every value src publishes.
func Map[T, U any](ctx context.Context, src *Value[T], fn func(T) U) <-chan U {
	in := src.Subscribe(ctx)
	out := make(chan U, 1)
	go func() {
		defer close(out)
		for val := range in {
			offer(out, fn(val))
		}
	}()
	return out
}
