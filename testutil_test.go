// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmq_test

import (
	"testing"
	"unsafe"

	"code.hybscloud.com/shmq"
)

// alignedRegion returns a size-byte region whose base is 8-byte aligned,
// backing the queue the way an mmapped segment would.
func alignedRegion(size int) []byte {
	words := make([]uint64, (size+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
}

// newQueue builds and initializes a queue over a fresh region sized for
// messages payloads of payload bytes.
func newQueue(t *testing.T, entries, payload, messages int) *shmq.Queue {
	t.Helper()
	b := shmq.NewBuilder(entries).Payload(payload).Messages(messages)
	q, err := b.Build(alignedRegion(b.RequiredSize()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return q
}
