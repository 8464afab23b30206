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
// Variable Allocator
// =============================================================================

// newAllocator builds an initialized allocator with the given number of
// node+chunk pairs. One pair is the sentinel, so pairs-1 chunks are usable.
func newAllocator(t *testing.T, pairs int) *shmq.Allocator {
	t.Helper()
	a, err := shmq.NewAllocator(alignedRegion(pairs * 40))
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	a.Init()
	return a
}

// TestAllocateInvalidInput verifies the zero-size guard.
func TestAllocateInvalidInput(t *testing.T) {
	a := newAllocator(t, 8)
	if d := a.Allocate(0); d != 0 {
		t.Fatalf("Allocate(0): got %d, want 0", d)
	}
}

// TestAllocateReleaseRoundTrip writes through a descriptor and reads the
// bytes back before releasing.
func TestAllocateReleaseRoundTrip(t *testing.T) {
	a := newAllocator(t, 8)

	d := a.Allocate(10)
	if d == 0 {
		t.Fatal("Allocate: got 0")
	}
	buf := a.Bytes(d)
	if len(buf) != 32 {
		t.Fatalf("Bytes: got %d bytes, want one chunk (32)", len(buf))
	}
	copy(buf, "ten bytes!")
	if !bytes.Equal(a.Bytes(d)[:10], []byte("ten bytes!")) {
		t.Fatal("Bytes: payload mismatch")
	}
	if !a.Release(d) {
		t.Fatal("Release: got false")
	}
}

// TestAllocateDistinctRuns checks that concurrent-style allocations hand out
// non-overlapping runs.
func TestAllocateDistinctRuns(t *testing.T) {
	a := newAllocator(t, 16)

	seen := map[uint32]bool{}
	for range 5 {
		d := a.Allocate(64) // two chunks
		if d == 0 {
			t.Fatal("Allocate: got 0")
		}
		if seen[d] || seen[d+1] {
			t.Fatalf("descriptor %d overlaps a live run", d)
		}
		seen[d] = true
		seen[d+1] = true
	}
}

// TestCoalesce releases three adjacent runs out of order and verifies the
// free list collapses back to one maximal run by allocating the full
// capacity afterwards.
func TestCoalesce(t *testing.T) {
	const pairs = 66 // 65 usable chunks
	a := newAllocator(t, pairs)

	da := a.Allocate(32)
	db := a.Allocate(32)
	dc := a.Allocate(32)
	if da == 0 || db == 0 || dc == 0 {
		t.Fatalf("Allocate: got %d, %d, %d", da, db, dc)
	}

	for _, d := range []uint32{db, da, dc} {
		if !a.Release(d) {
			t.Fatalf("Release(%d): got false", d)
		}
	}

	// The strict fit predicate keeps the victim's head alive, so the
	// largest satisfiable request is capacity-1 chunks. It only fits if
	// the three runs were re-absorbed into the single maximal run.
	if d := a.Allocate((pairs - 2) * 32); d == 0 {
		t.Fatal("Allocate after coalesce: got 0, want full-capacity run")
	}
}

// TestStrictFit verifies the fit predicate is strict: a request for every
// usable chunk fails even on a pristine region.
func TestStrictFit(t *testing.T) {
	const pairs = 66
	a := newAllocator(t, pairs)

	if d := a.Allocate((pairs - 1) * 32); d != 0 {
		t.Fatalf("Allocate(all %d chunks): got %d, want 0", pairs-1, d)
	}
	if d := a.Allocate((pairs - 2) * 32); d == 0 {
		t.Fatal("Allocate(capacity-1 chunks): got 0")
	}
}

// TestExhaustionAndRecovery allocates single chunks until the region runs
// dry, releases them in an interleaved order, and verifies the capacity is
// fully recovered.
func TestExhaustionAndRecovery(t *testing.T) {
	const pairs = 34 // 33 usable chunks, 32 allocatable singles
	a := newAllocator(t, pairs)

	var held []uint32
	for {
		d := a.Allocate(1)
		if d == 0 {
			break
		}
		held = append(held, d)
	}
	if len(held) != pairs-2 {
		t.Fatalf("allocated %d single-chunk runs, want %d", len(held), pairs-2)
	}

	// Evens first, then odds: forces both the relink and the re-absorb
	// release paths.
	for i := 0; i < len(held); i += 2 {
		if !a.Release(held[i]) {
			t.Fatalf("Release(%d): got false", held[i])
		}
	}
	for i := 1; i < len(held); i += 2 {
		if !a.Release(held[i]) {
			t.Fatalf("Release(%d): got false", held[i])
		}
	}

	if d := a.Allocate((pairs - 2) * 32); d == 0 {
		t.Fatal("Allocate after recovery: got 0, want full-capacity run")
	}
}

// TestFastRelease succeeds uncontended and makes the run reusable.
func TestFastRelease(t *testing.T) {
	a := newAllocator(t, 8)

	d := a.Allocate(32)
	if d == 0 {
		t.Fatal("Allocate: got 0")
	}
	if !a.FastRelease(d) {
		t.Fatal("FastRelease uncontended: got false")
	}
	if d2 := a.Allocate((8 - 2) * 32); d2 == 0 {
		t.Fatal("Allocate after FastRelease: got 0")
	}
}

// TestReleaseOutOfRange verifies the trusted-peer guard: descriptor 0 and
// out-of-range descriptors are ignored.
func TestReleaseOutOfRange(t *testing.T) {
	a := newAllocator(t, 8)

	if !a.Release(0) {
		t.Fatal("Release(0): got false")
	}
	if !a.Release(1 << 20) {
		t.Fatal("Release(out of range): got false")
	}
	if d := a.Allocate((8 - 2) * 32); d == 0 {
		t.Fatal("region damaged by ignored releases")
	}
}

// TestNewAllocatorValidation rejects regions that cannot hold the sentinel
// plus two usable pairs.
func TestNewAllocatorValidation(t *testing.T) {
	if _, err := shmq.NewAllocator(nil); !errors.Is(err, shmq.ErrRegionTooSmall) {
		t.Fatalf("NewAllocator(nil): got %v, want ErrRegionTooSmall", err)
	}
	if _, err := shmq.NewAllocator(alignedRegion(2 * 40)); !errors.Is(err, shmq.ErrRegionTooSmall) {
		t.Fatalf("NewAllocator(2 pairs): got %v, want ErrRegionTooSmall", err)
	}
	if _, err := shmq.NewAllocator(alignedRegion(8*40 + 4)[4:]); !errors.Is(err, shmq.ErrRegionMisaligned) {
		t.Fatalf("NewAllocator(misaligned): got %v, want ErrRegionMisaligned", err)
	}
	if _, err := shmq.NewAllocator(alignedRegion(8 * 40)); err != nil {
		t.Fatalf("NewAllocator(8 pairs): %v", err)
	}
}
