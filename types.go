// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmq

// MessageQueue is the combined producer-consumer interface for a
// shared-memory message queue.
//
// MessageQueue provides non-blocking Enqueue and Dequeue over variable-
// length byte messages. Both operations return ErrWouldBlock when they
// cannot proceed (ring full, allocator exhausted, or queue empty).
//
// The interface intentionally excludes a length method: an accurate count
// across processes would require synchronization the lock-free design
// avoids. The observational helpers are point-in-time hints.
type MessageQueue interface {
	Producer
	Consumer
	Cap() int
	IsEmpty() bool
	IsFull() bool
}

// Producer is the interface for enqueueing messages.
//
// The message bytes are copied into the shared region; the caller's buffer
// may be reused as soon as Enqueue returns.
type Producer interface {
	// Enqueue publishes a copy of data as one message (non-blocking).
	// Returns nil on success, ErrWouldBlock when the queue cannot accept
	// the message. Safe for concurrent use from multiple goroutines and
	// multiple processes mapping the same region.
	Enqueue(data []byte) error
}

// Consumer is the interface for dequeueing messages.
//
// The returned slice is a copy owned by the caller; it does not alias the
// shared region.
type Consumer interface {
	// Dequeue removes and returns the oldest message (non-blocking).
	// Returns (nil, ErrWouldBlock) when the queue is empty. Safe for
	// concurrent use from multiple goroutines and multiple processes.
	Dequeue() ([]byte, error)
}

// Stats exposes the overflow accounting carried in the region header.
type Stats interface {
	// OverflowCount returns the number of failed enqueues since Init or
	// the last reset.
	OverflowCount() int
	// ResetOverflowCount zeroes the counter.
	ResetOverflowCount()
}

var (
	_ MessageQueue = (*Queue)(nil)
	_ Stats        = (*Queue)(nil)
)
