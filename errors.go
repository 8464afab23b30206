// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmq

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates the operation cannot proceed immediately.
//
// For Enqueue: the ring is full, the allocator is out of chunk space, or
// the retry budget was exhausted under contention (backpressure).
// For Dequeue: the queue is empty.
//
// ErrWouldBlock is a control flow signal, not a failure. The caller should
// retry later (with backoff or yield) rather than propagating the error.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

// Region construction errors returned by New, Attach, and NewAllocator.
var (
	// ErrRegionTooSmall indicates the region cannot hold the header plus
	// the minimum three node+chunk pairs.
	ErrRegionTooSmall = errors.New("shmq: region too small")

	// ErrRegionMisaligned indicates the region base is not 8-byte aligned,
	// so node words could not be CASed atomically.
	ErrRegionMisaligned = errors.New("shmq: region base misaligned")

	// ErrEntryCount indicates an entry count outside [2, 1<<30].
	ErrEntryCount = errors.New("shmq: invalid entry count")
)

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
