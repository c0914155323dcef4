// Package ringchan provides a bounded channel with overwrite-oldest
// semantics, used to decouple event producers (scan handler, disconnect
// watchers, notification handlers) from consumers that may lag behind.
package ringchan

import "sync/atomic"

// RingChannel wraps a buffered channel so that producers never block: when
// the buffer is full the oldest element is discarded to make room.
//
// Readers drain it like a normal channel via C().
type RingChannel[T any] struct {
	ch          chan T
	written     atomic.Uint64
	overwritten atomic.Uint64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// ForceSend inserts an item, discarding the oldest buffered element if the
// buffer is full. It never blocks indefinitely.
func (rc *RingChannel[T]) ForceSend(v T) {
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return
		default:
		}
		select {
		case <-rc.ch: // drop oldest
			rc.overwritten.Add(1)
		default:
		}
	}
}

// TrySend attempts to insert without blocking or discarding.
// Returns false if the buffer is full.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		rc.written.Add(1)
		return true
	default:
		return false
	}
}

// Len reports the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Written reports how many elements were accepted in total.
func (rc *RingChannel[T]) Written() uint64 {
	return rc.written.Load()
}

// Overwritten reports how many buffered elements were discarded to make room.
func (rc *RingChannel[T]) Overwritten() uint64 {
	return rc.overwritten.Load()
}
