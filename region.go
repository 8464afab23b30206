// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmq

import (
	"unsafe"

	"code.hybscloud.com/atomix"
)

// Region byte layout:
//
//	offset 0                    read_pos        (4 bytes)
//	offset 4                    write_pos       (4 bytes)
//	offset 8                    overflow_count  (4 bytes)
//	offset 12                   entry_count     (4 bytes)
//	offset 16                   slot array      (4 × entry_count bytes)
//	offset H (8-aligned)        node array      (8 × node_count)
//	offset H + 8·node_count     chunk array     (32 × node_count)
//
// node_count = (len(region) − H) / (8 + 32). Integers are native-endian
// words accessed atomically; the region is not meant to cross architectures.
const (
	headerFixedSize = 16
	slotSize        = 4

	// lengthWordSize is the payload length prefix stored in chunk memory.
	lengthWordSize = 8
)

// headerSize returns the byte offset of the node array for a ring of
// entryCount slots, rounded up so 64-bit node words stay naturally aligned.
func headerSize(entryCount int) int {
	return (headerFixedSize + entryCount*slotSize + nodeSize - 1) &^ (nodeSize - 1)
}

// RequiredSize returns the minimum region size for a ring of entryCount
// slots able to hold at least one message of payloadSize bytes: the header,
// the sentinel overhead, and enough node+chunk pairs for the framed payload.
func RequiredSize(entryCount, payloadSize int) int {
	chunks := (payloadSize + lengthWordSize + chunkSize - 1) / chunkSize
	return headerSize(entryCount) + (2+chunks)*(nodeSize+chunkSize)
}

// New builds a queue view over mem with entryCount ring slots and stamps
// entry_count into the header. The rest of the region is left untouched;
// exactly one process must call Init before any Enqueue or Dequeue.
func New(mem []byte, entryCount int) (*Queue, error) {
	if entryCount < 2 || entryCount > 1<<30 {
		return nil, ErrEntryCount
	}
	q, err := view(mem, entryCount)
	if err != nil {
		return nil, err
	}
	q.entryCnt.StoreRelaxed(uint32(entryCount))
	return q, nil
}

// Attach builds a queue view over a region that another process has already
// laid out, reading entry_count from the header. The region must have been
// through New; it need not have been through Init yet.
func Attach(mem []byte) (*Queue, error) {
	if len(mem) < headerFixedSize {
		return nil, ErrRegionTooSmall
	}
	if uintptr(unsafe.Pointer(&mem[0]))%nodeSize != 0 {
		return nil, ErrRegionMisaligned
	}
	entryCount := int(((*atomix.Uint32)(unsafe.Pointer(&mem[headerFixedSize-slotSize]))).LoadAcquire())
	if entryCount < 2 || entryCount > 1<<30 {
		return nil, ErrEntryCount
	}
	return view(mem, entryCount)
}

// view overlays the queue header, slot array, and allocator on mem.
func view(mem []byte, entryCount int) (*Queue, error) {
	h := headerSize(entryCount)
	if len(mem) < h {
		return nil, ErrRegionTooSmall
	}
	if uintptr(unsafe.Pointer(&mem[0]))%nodeSize != 0 {
		return nil, ErrRegionMisaligned
	}
	alloc, err := NewAllocator(mem[h:])
	if err != nil {
		return nil, err
	}

	words := unsafe.Slice((*atomix.Uint32)(unsafe.Pointer(&mem[0])), headerFixedSize/slotSize+entryCount)
	return &Queue{
		readPos:  &words[0],
		writePos: &words[1],
		overflow: &words[2],
		entryCnt: &words[3],
		slots:    words[4:],
		entries:  uint32(entryCount),
		alloc:    alloc,
	}, nil
}
