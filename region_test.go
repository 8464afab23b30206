// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmq_test

import (
	"bytes"
	"errors"
	"testing"

	"code.hybscloud.com/shmq"
)

// =============================================================================
// Region Layout and Attachment
// =============================================================================

// TestNewValidation exercises the region construction guards.
func TestNewValidation(t *testing.T) {
	if _, err := shmq.New(alignedRegion(4096), 1); !errors.Is(err, shmq.ErrEntryCount) {
		t.Fatalf("New(entryCount=1): got %v, want ErrEntryCount", err)
	}
	if _, err := shmq.New(alignedRegion(64), 4); !errors.Is(err, shmq.ErrRegionTooSmall) {
		t.Fatalf("New(64 bytes): got %v, want ErrRegionTooSmall", err)
	}
	if _, err := shmq.New(alignedRegion(4100)[4:], 4); !errors.Is(err, shmq.ErrRegionMisaligned) {
		t.Fatalf("New(misaligned): got %v, want ErrRegionMisaligned", err)
	}
	if _, err := shmq.New(alignedRegion(4096), 4); err != nil {
		t.Fatalf("New: %v", err)
	}
}

// TestAttachSharesRegion lays a queue over a region through one view and
// drives it through another, the way two processes mapping the same segment
// would.
func TestAttachSharesRegion(t *testing.T) {
	b := shmq.NewBuilder(8).Payload(64).Messages(4)
	mem := alignedRegion(b.RequiredSize())

	producer, err := b.Build(mem)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	consumer, err := shmq.Attach(mem)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if consumer.Cap() != producer.Cap() {
		t.Fatalf("Cap via attach: got %d, want %d", consumer.Cap(), producer.Cap())
	}

	if err := producer.Enqueue([]byte("cross-view")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	msg, err := consumer.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue via attach: %v", err)
	}
	if !bytes.Equal(msg, []byte("cross-view")) {
		t.Fatalf("Dequeue via attach: got %q", msg)
	}
	if !producer.IsEmpty() {
		t.Fatal("producer view still sees messages")
	}
}

// TestAttachValidation rejects regions whose header was never stamped.
func TestAttachValidation(t *testing.T) {
	if _, err := shmq.Attach(alignedRegion(8)); !errors.Is(err, shmq.ErrRegionTooSmall) {
		t.Fatalf("Attach(8 bytes): got %v, want ErrRegionTooSmall", err)
	}
	// Zeroed header carries entry_count 0.
	if _, err := shmq.Attach(alignedRegion(4096)); !errors.Is(err, shmq.ErrEntryCount) {
		t.Fatalf("Attach(zeroed): got %v, want ErrEntryCount", err)
	}
}

// TestRequiredSize verifies the sizing contract: a region of exactly the
// required size holds a ring of the requested shape plus one framed payload.
func TestRequiredSize(t *testing.T) {
	const entries, payload = 6, 100
	size := shmq.RequiredSize(entries, payload)

	q, err := shmq.New(alignedRegion(size), entries)
	if err != nil {
		t.Fatalf("New(%d bytes): %v", size, err)
	}
	q.Init()

	msg := bytes.Repeat([]byte{0x5a}, payload)
	if err := q.Enqueue(msg); err != nil {
		t.Fatalf("Enqueue(%d bytes): %v", payload, err)
	}
	got, err := q.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatal("payload mismatch")
	}

	if shmq.RequiredSize(entries, 2*payload) <= size {
		t.Fatal("RequiredSize not monotone in payload size")
	}
	if shmq.RequiredSize(2*entries, payload) <= size {
		t.Fatal("RequiredSize not monotone in entry count")
	}
}

// TestOddEntryCount keeps node words aligned when the slot array ends off
// an 8-byte boundary.
func TestOddEntryCount(t *testing.T) {
	for _, entries := range []int{2, 3, 5, 7, 9} {
		q := newQueue(t, entries, 48, 2)
		if err := q.Enqueue([]byte("odd-slots")); err != nil {
			t.Fatalf("entries=%d Enqueue: %v", entries, err)
		}
		msg, err := q.Dequeue()
		if err != nil {
			t.Fatalf("entries=%d Dequeue: %v", entries, err)
		}
		if string(msg) != "odd-slots" {
			t.Fatalf("entries=%d: got %q", entries, msg)
		}
	}
}

// TestBuilderRejectsShortRegion verifies Build checks the plan against the
// region it is handed.
func TestBuilderRejectsShortRegion(t *testing.T) {
	b := shmq.NewBuilder(8).Payload(1024).Messages(8)
	if _, err := b.Build(alignedRegion(b.RequiredSize() / 2)); !errors.Is(err, shmq.ErrRegionTooSmall) {
		t.Fatalf("Build(short region): got %v, want ErrRegionTooSmall", err)
	}
}
