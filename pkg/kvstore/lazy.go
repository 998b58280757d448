package kvstore

import (
	"context"
	"fmt"
	"sync"
)

// Lazy opens the underlying store on first use. Every operation waits for
// that single initialization; if it failed, every operation returns the
// initialization error.
type Lazy struct {
	open func() (Store, error)

	once  sync.Once
	done  chan struct{}
	store Store
	err   error
}

func NewLazy(open func() (Store, error)) *Lazy {
	return &Lazy{open: open, done: make(chan struct{})}
}

func (l *Lazy) init() {
	l.once.Do(func() {
		go func() {
			defer close(l.done)
			s, err := l.open()
			if err != nil {
				l.err = fmt.Errorf("failed to initialize store: %w", err)
				return
			}
			l.store = s
		}()
	})
}

func (l *Lazy) ready(ctx context.Context) (Store, error) {
	l.init()
	select {
	case <-l.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.store, nil
}

// Ready blocks until the store is open.
func (l *Lazy) Ready(ctx context.Context) error {
	_, err := l.ready(ctx)
	return err
}

func (l *Lazy) Get(ctx context.Context, key string) ([]byte, error) {
	s, err := l.ready(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, key)
}

func (l *Lazy) Set(ctx context.Context, key string, value []byte) error {
	s, err := l.ready(ctx)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, value)
}

func (l *Lazy) Remove(ctx context.Context, key string) error {
	s, err := l.ready(ctx)
	if err != nil {
		return err
	}
	return s.Remove(ctx, key)
}

func (l *Lazy) Clear(ctx context.Context) error {
	s, err := l.ready(ctx)
	if err != nil {
		return err
	}
	return s.Clear(ctx)
}

// Close closes the underlying store if it was ever opened. A store that was
// never used is not opened; later operations on it return ErrClosed.
func (l *Lazy) Close() error {
	l.once.Do(func() {
		l.err = ErrClosed
		close(l.done)
	})
	<-l.done
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}
