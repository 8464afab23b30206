// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shmq provides a lock-free multi-producer multi-consumer message
// queue living entirely inside a fixed-size shared-memory region.
//
// Processes that map the same region (see the shm subpackage) exchange
// variable-length byte messages without kernel mediation on the fast path.
// The region holds two cooperating lock-free structures: a bounded ring of
// descriptor slots providing FIFO order, and a variable-size free-list
// allocator over fixed 32-byte chunks holding the payload bytes. Every
// free-list node word is updated by a single CompareAndSwap carrying a
// version counter, ring slots and cursors by single-word CompareAndSwap,
// and every inter-element link is a self-relative index, so the structures
// stay correct across address spaces.
//
// # Quick Start
//
// One process creates and initializes the region:
//
//	b := shmq.NewBuilder(64).Payload(4096).Messages(16)
//	seg, err := shm.Create("worker-bus", b.RequiredSize())
//	if err != nil { ... }
//	q, err := b.Build(seg.Bytes())
//
// Cooperating processes attach to it:
//
//	seg, err := shm.Open("worker-bus")
//	q, err := shmq.Attach(seg.Bytes())
//
// Then any of them exchange messages:
//
//	if err := q.Enqueue([]byte("hello")); shmq.IsWouldBlock(err) {
//	    // ring full or allocator exhausted - handle backpressure
//	}
//
//	msg, err := q.Dequeue()
//	if shmq.IsWouldBlock(err) {
//	    // queue empty - try again later
//	}
//
// # Non-blocking Semantics
//
// No operation suspends. Enqueue prefers overflow to waiting: a full ring,
// an exhausted allocator, or an exhausted retry budget all return
// [ErrWouldBlock] and bump the region's overflow counter. Callers wanting
// durability retry with backoff:
//
//	backoff := iox.Backoff{}
//	for {
//	    err := q.Enqueue(msg)
//	    if err == nil {
//	        break
//	    }
//	    if !shmq.IsWouldBlock(err) {
//	        return err
//	    }
//	    backoff.Wait()
//	}
//
// # Ordering Guarantees
//
// Messages are FIFO under a single producer and single consumer. Under
// multiple producers the order between producers is unspecified; the queue
// guarantees that a message accepted by Enqueue is returned by exactly one
// Dequeue. Payload bytes are fully written before the slot CAS publishes
// the descriptor (release) and read after the slot load observes it
// (acquire).
//
// # Trust Model
//
// The queue assumes cooperating processes that trust each other's access
// to the region. There is no protection against a peer corrupting shared
// words, no persistence across re-initialization, and no fairness
// guarantee between producers or consumers.
//
// # Race Detection
//
// Go's race detector cannot observe happens-before edges established by
// atomic acquire-release on shared-memory words, so stress tests that
// exercise cross-variable ordering are skipped under -race via
// [RaceEnabled]. Verify the algorithms with stress runs without the
// detector.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors,
// [code.hybscloud.com/atomix] for atomic words with explicit memory
// ordering, and [code.hybscloud.com/spin] for CPU pause instructions.
package shmq
