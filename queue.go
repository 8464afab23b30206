// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmq

import (
	"encoding/binary"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Slot word layout (32 bits): bit 0 is the state (FREE/USED), bits 1..31
// hold the descriptor of the published run. A FREE slot is always the zero
// word; its value bits are meaningless and must never be dereferenced.
const slotUsed = 1

func packSlot(descriptor uint32) uint32 { return descriptor<<1 | slotUsed }
func slotTaken(word uint32) bool        { return word&slotUsed != 0 }
func slotValue(word uint32) uint32      { return word >> 1 }

// Queue is a lock-free multi-producer multi-consumer message queue living
// entirely inside a fixed-size shared-memory region.
//
// Processes mapping the same region exchange variable-length byte messages
// without kernel mediation: a bounded ring of descriptor slots provides
// FIFO ordering while an embedded variable-size allocator holds the payload
// bytes. All coordination is word-sized CompareAndSwap on shared words;
// no operation blocks. Enqueue prefers reporting overflow to waiting.
//
// Messages are FIFO under a single producer and single consumer. Under
// multiple producers the order between producers is unspecified, but every
// message accepted by Enqueue is returned by exactly one Dequeue.
type Queue struct {
	readPos  *atomix.Uint32
	writePos *atomix.Uint32
	overflow *atomix.Uint32
	entryCnt *atomix.Uint32
	slots    []atomix.Uint32
	entries  uint32
	alloc    *Allocator
}

// Init initializes the region exactly once: cursors and the overflow
// counter are zeroed, all slots become FREE, and the allocator free list is
// seeded. Callers must coordinate so that a single process runs Init before
// any process enqueues or dequeues; Init is not idempotent under traffic.
func (q *Queue) Init() {
	q.alloc.Init()
	q.readPos.StoreRelaxed(0)
	q.writePos.StoreRelaxed(0)
	q.overflow.StoreRelaxed(0)
	for i := range q.slots {
		q.slots[i].StoreRelaxed(0)
	}
}

// Allocator exposes the embedded payload allocator.
func (q *Queue) Allocator() *Allocator { return q.alloc }

// Cap returns the number of ring slots. One slot is always kept open, so at
// most Cap()-1 messages are in flight at once.
func (q *Queue) Cap() int { return int(q.entries) }

// Enqueue copies data into the region and publishes it as one message.
// Returns ErrWouldBlock when the ring is full, when the allocator cannot
// hold the payload, or when the retry budget is exhausted under contention;
// every failed enqueue increments the overflow counter once.
func (q *Queue) Enqueue(data []byte) error {
	if q.IsFull() {
		q.overflow.Add(1)
		return ErrWouldBlock
	}

	d := q.alloc.Allocate(uint32(lengthWordSize + len(data)))
	if d == 0 {
		q.overflow.Add(1)
		return ErrWouldBlock
	}

	// Payload bytes must be fully written before the slot CAS publishes
	// the descriptor; the CAS is the release point.
	buf := q.alloc.Bytes(d)
	binary.LittleEndian.PutUint64(buf, uint64(len(data)))
	copy(buf[lengthWordSize:], data)

	if !q.publish(d) {
		q.alloc.Release(d)
		q.overflow.Add(1)
		return ErrWouldBlock
	}
	return nil
}

// Dequeue claims the oldest published message, copies its payload out,
// releases its run, and returns the copy. Returns ErrWouldBlock when the
// queue is empty.
func (q *Queue) Dequeue() ([]byte, error) {
	d, ok := q.claim()
	if !ok {
		return nil, ErrWouldBlock
	}

	buf := q.alloc.Bytes(d)
	size := binary.LittleEndian.Uint64(buf)
	data := make([]byte, size)
	copy(data, buf[lengthWordSize:lengthWordSize+size])
	q.alloc.Release(d)
	return data, nil
}

// IsEmpty reports whether the ring holds no published messages.
func (q *Queue) IsEmpty() bool {
	return q.readPos.LoadAcquire() == q.writePos.LoadAcquire()
}

// IsFull reports whether the ring has no open slot.
func (q *Queue) IsFull() bool {
	w := q.writePos.LoadAcquire()
	return q.readPos.LoadAcquire() == q.next(w)
}

// OverflowCount returns the number of failed enqueues since Init or the
// last reset. It is monotone between resets.
func (q *Queue) OverflowCount() int {
	return int(q.overflow.LoadAcquire())
}

// ResetOverflowCount zeroes the overflow counter.
func (q *Queue) ResetOverflowCount() {
	q.overflow.Store(0)
}

func (q *Queue) next(pos uint32) uint32 {
	return (pos + 1) % q.entries
}

// publish reserves the slot under the write cursor and installs the
// descriptor. The cursor CASes are cooperative: losing one means a peer
// already advanced it, which is progress all the same.
func (q *Queue) publish(descriptor uint32) bool {
	sw := spin.Wait{}
	for {
		r := q.readPos.LoadAcquire()
		w := q.writePos.LoadAcquire()
		next := q.next(w)
		if r == next {
			return false
		}

		word := q.slots[w].LoadAcquire()
		if slotTaken(word) {
			// Another producer is mid-publish at w; help advance and retry.
			q.writePos.CompareAndSwapAcqRel(w, next)
			sw.Once()
			continue
		}
		if !q.slots[w].CompareAndSwapAcqRel(word, packSlot(descriptor)) {
			sw.Once()
			continue
		}
		q.writePos.CompareAndSwapAcqRel(w, next)
		return true
	}
}

// claim empties the slot under the read cursor and returns its descriptor.
// A stalled producer never wedges the consumer: the slot state is observed
// directly, and an uncommitted slot is skipped by helping the cursor along.
func (q *Queue) claim() (uint32, bool) {
	sw := spin.Wait{}
	for {
		r := q.readPos.LoadAcquire()
		w := q.writePos.LoadAcquire()
		if r == w {
			return 0, false
		}
		next := q.next(r)

		word := q.slots[r].LoadAcquire()
		if !slotTaken(word) {
			q.readPos.CompareAndSwapAcqRel(r, next)
			sw.Once()
			continue
		}
		if !q.slots[r].CompareAndSwapAcqRel(word, 0) {
			sw.Once()
			continue
		}
		q.readPos.CompareAndSwapAcqRel(r, next)
		return slotValue(word), true
	}
}
