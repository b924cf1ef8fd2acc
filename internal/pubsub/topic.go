// Package pubsub fans values out to any number of channel subscribers.
package pubsub

import "sync"

const defaultBuffer = 64

// Topic delivers published values to every current subscriber. Publish never
// blocks: a subscriber whose buffer is full misses the value.
type Topic[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	buffer int
	closed bool
}

func NewTopic[T any](buffer int) *Topic[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Topic[T]{subs: make(map[chan T]struct{}), buffer: buffer}
}

// Subscribe returns a receive channel and a cancel func that unsubscribes and
// closes it.
func (t *Topic[T]) Subscribe() (<-chan T, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan T, t.buffer)
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	t.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() { t.unsubscribe(ch) })
	}
}

func (t *Topic[T]) unsubscribe(ch chan T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
}

// Publish returns the number of subscribers that received v.
func (t *Topic[T]) Publish(v T) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	delivered := 0
	for ch := range t.subs {
		select {
		case ch <- v:
			delivered++
		default:
		}
	}
	return delivered
}

func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close closes every subscriber channel. Later subscribers get a closed channel.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for ch := range t.subs {
		delete(t.subs, ch)
		close(ch)
	}
}
