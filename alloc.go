// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmq

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

const (
	// chunkSize is the fixed unit of payload storage.
	chunkSize = 32
	// nodeSize is the size of one packed free-list node word.
	nodeSize = 8

	// retryLimit bounds free-list traversal restarts before giving up.
	retryLimit = 32
	// fastRetryLimit is the budget used by FastRelease: a single walk with
	// no restarts.
	fastRetryLimit = 0
)

// Allocator is a lock-free variable-size allocator over a contiguous memory
// region shared between processes.
//
// The region is split into nodeCount packed node words followed by nodeCount
// fixed-size chunks. Free space is a singly-linked list of chunk runs,
// sorted by index and threaded through the node words; node 0 is a permanent
// sentinel head. Allocation splits a run's tail off, release links a run
// back in, and traversal opportunistically coalesces physically adjacent
// free runs with a two-phase mark-then-join protocol. Every mutation is a
// single CompareAndSwap on a whole node word with its version bumped.
//
// Descriptors returned by Allocate are node indices. They are valid in every
// process mapping the region; pointers derived from them are not.
type Allocator struct {
	nodes     []atomix.Uint64
	chunks    []byte
	nodeCount uint32
}

// NewAllocator builds an allocator view over mem. The base address must be
// 8-byte aligned and mem must hold at least three node+chunk pairs. The
// region is not touched; call Init exactly once per region before use.
func NewAllocator(mem []byte) (*Allocator, error) {
	if len(mem) == 0 {
		return nil, ErrRegionTooSmall
	}
	if uintptr(unsafe.Pointer(&mem[0]))%nodeSize != 0 {
		return nil, ErrRegionMisaligned
	}
	count := uint32(len(mem) / (nodeSize + chunkSize))
	if count <= 2 {
		return nil, ErrRegionTooSmall
	}
	if count >= nodeCountLimit {
		count = nodeCountLimit - 1
	}
	n := int(count)
	return &Allocator{
		nodes:     unsafe.Slice((*atomix.Uint64)(unsafe.Pointer(&mem[0])), n),
		chunks:    mem[n*nodeSize : n*nodeSize+n*chunkSize : n*nodeSize+n*chunkSize],
		nodeCount: count,
	}, nil
}

// Init seeds the free list: sentinel node 0 pointing at node 1, which holds
// all nodeCount-1 usable chunks as one run. Must complete before any other
// process operates on the region.
func (a *Allocator) Init() {
	a.nodes[0].StoreRelaxed(uint64(packNode(1, 0, 0, statusAvailable)))
	a.nodes[1].StoreRelaxed(uint64(packNode(a.nodeCount, 0, a.nodeCount-1, statusAvailable)))
}

// NodeCount returns the number of node+chunk pairs in the region.
func (a *Allocator) NodeCount() int { return int(a.nodeCount) }

// Allocate reserves a run of chunks large enough for size bytes and returns
// its descriptor. Returns 0 when size is 0, when no sufficient run exists,
// or when the traversal retry budget is exhausted under contention.
func (a *Allocator) Allocate(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	need := (size + chunkSize - 1) / chunkSize

	sw := spin.Wait{}
	for {
		cand, ok := a.findCandidate(func(s *snapshot) bool {
			w := s.node()
			return w.available() && w.count() > need
		}, retryLimit)
		if !ok {
			return 0
		}

		// Split at the tail of the victim: the list linkage through the
		// victim's next pointer is untouched, so concurrent walkers never
		// observe a broken chain.
		prev := cand.node()
		if !cand.cas(prev.withCount(prev.count() - need)) {
			sw.Once()
			continue
		}

		d := cand.idx + prev.count() - need
		a.nodes[d].StoreRelease(uint64(packNode(0, prev.version()+1, need, statusAvailable)))
		return d
	}
}

// Release returns the run at descriptor back to the free list, retrying on
// contention up to the traversal budget. Reports whether the run was linked
// back in; out-of-range descriptors are ignored and report true.
func (a *Allocator) Release(descriptor uint32) bool {
	return a.release(descriptor, retryLimit, false)
}

// FastRelease is Release with a single-attempt budget: it abandons after the
// first conflict and reports false, leaving the region untouched. The caller
// may retry later or account the run as lost.
func (a *Allocator) FastRelease(descriptor uint32) bool {
	return a.release(descriptor, fastRetryLimit, true)
}

// Bytes returns the chunk bytes of the run at descriptor. The slice aliases
// the shared region and is valid only while the descriptor is held.
func (a *Allocator) Bytes(descriptor uint32) []byte {
	w := node(a.nodes[descriptor].LoadAcquire())
	off := int(descriptor) * chunkSize
	return a.chunks[off : off+int(w.count())*chunkSize]
}

func (a *Allocator) release(descriptor uint32, retry int, fast bool) bool {
	if descriptor == 0 || descriptor >= a.nodeCount {
		return true
	}

	sw := spin.Wait{}
	for attempt := 0; ; attempt++ {
		pred, ok := a.findCandidate(func(s *snapshot) bool {
			return descriptor < s.node().next()
		}, retry)
		if !ok {
			return false
		}

		freed := node(a.nodes[descriptor].LoadAcquire())
		var updated node
		if descriptor == pred.idx+pred.node().count() {
			// Physically adjacent: re-absorb the returned chunks into pred.
			updated = pred.node().withCount(pred.node().count() + freed.count())
		} else {
			// Link the node in behind pred. Writing its next pointer before
			// the CAS is safe: nothing reaches the node until pred points
			// at it.
			updated = pred.node().withNext(descriptor)
			a.nodes[descriptor].StoreRelease(uint64(freed.withNext(pred.node().next())))
		}

		if pred.cas(updated) {
			return true
		}
		if fast || attempt >= retry {
			return false
		}
		sw.Once()
	}
}

// findCandidate walks the free list from the sentinel advancing (pred, curr)
// snapshot pairs until fn(curr) holds, coalescing adjacent free runs along
// the way. Any step invalidated by a concurrent mutation restarts the walk
// from the sentinel; at most retry restarts are spent before giving up.
func (a *Allocator) findCandidate(fn func(*snapshot) bool, retry int) (snapshot, bool) {
	for ; retry >= 0; retry-- {
		pred := takeSnapshot(&a.nodes[0], 0)
		for {
			if pred.node().next() == a.nodeCount {
				return snapshot{}, false
			}

			curr, ok := a.nextSnapshot(&pred)
			if !ok {
				break
			}
			if !a.markJoinable(&pred, &curr) {
				break
			}
			if !a.joinMarked(&pred, &curr) {
				break
			}

			if fn(&curr) {
				return curr, true
			}
			pred = curr
		}
	}
	return snapshot{}, false
}

// nextSnapshot observes pred's successor. Fails if pred changed while the
// successor was being read, or if curr carries a joinTail mark without pred
// holding the matching joinHead (a coalesce abandoned by another walker).
func (a *Allocator) nextSnapshot(pred *snapshot) (snapshot, bool) {
	next := pred.node().next()
	var curr snapshot
	curr.update(&a.nodes[next], next)
	if pred.modified() {
		return curr, false
	}
	if !pred.node().joinHead() && curr.node().joinTail() {
		return curr, false
	}
	return curr, true
}

// markJoinable is the mark phase of coalescing: when pred and curr are
// physically adjacent, set joinHead on pred and joinTail on curr. Either
// CAS failing abandons the mark and restarts the walk; a later traversal
// re-asserts it.
func (a *Allocator) markJoinable(pred, curr *snapshot) bool {
	if !joinable(pred) {
		return true
	}
	return pred.cas(pred.node().withStatus(pred.node().status()|statusJoinHead)) &&
		curr.cas(curr.node().withStatus(curr.node().status()|statusJoinTail))
}

// joinMarked is the commit phase: when both marks are set, a single CAS on
// pred merges curr into it and curr disappears from the list. The walk then
// continues with the merged node standing in for curr.
func (a *Allocator) joinMarked(pred, curr *snapshot) bool {
	if !(pred.node().joinHead() && curr.node().joinTail()) {
		return true
	}
	if !pred.cas(pred.node().join(curr.node())) {
		return false
	}
	*curr = *pred
	return true
}

// joinable reports whether s's run ends exactly where its successor begins.
func joinable(s *snapshot) bool {
	return s.node().next() == s.idx+s.node().count()
}
