// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmq

// Options configures region sizing and queue creation.
type Options struct {
	entryCount int
	payload    int
	messages   int
}

// Builder plans a queue region with fluent configuration.
//
// The builder answers the one sizing question callers otherwise get wrong:
// how many bytes a region needs for a ring of entryCount slots holding up
// to messages payloads of payload bytes each. The caller maps a region of
// at least RequiredSize bytes (see the shm package) and hands it to Build.
//
// Example:
//
//	b := shmq.NewBuilder(64).Payload(4096).Messages(16)
//	seg, _ := shm.CreateAnonymous(b.RequiredSize())
//	q, _ := b.Build(seg.Bytes())
type Builder struct {
	opts Options
}

// NewBuilder creates a region builder for a ring of entryCount slots.
// Panics if entryCount < 2; region construction re-validates and returns
// errors, this guard only catches impossible plans early.
func NewBuilder(entryCount int) *Builder {
	if entryCount < 2 {
		panic("shmq: entry count must be >= 2")
	}
	return &Builder{opts: Options{
		entryCount: entryCount,
		payload:    chunkSize - lengthWordSize,
		messages:   1,
	}}
}

// Payload declares the largest payload, in bytes, the region must hold.
func (b *Builder) Payload(n int) *Builder {
	if n > 0 {
		b.opts.payload = n
	}
	return b
}

// Messages declares how many maximum-size payloads must fit concurrently.
// In-flight messages hold their chunk runs until dequeued.
func (b *Builder) Messages(n int) *Builder {
	if n > 0 {
		b.opts.messages = n
	}
	return b
}

// RequiredSize returns the minimum region size for the configured plan.
func (b *Builder) RequiredSize() int {
	chunks := (b.opts.payload + lengthWordSize + chunkSize - 1) / chunkSize
	return headerSize(b.opts.entryCount) + (2+b.opts.messages*chunks)*(nodeSize+chunkSize)
}

// Build lays a fresh queue over mem and initializes it. The region must be
// at least RequiredSize bytes. Processes joining afterwards use Attach.
func (b *Builder) Build(mem []byte) (*Queue, error) {
	if len(mem) < b.RequiredSize() {
		return nil, ErrRegionTooSmall
	}
	q, err := New(mem, b.opts.entryCount)
	if err != nil {
		return nil, err
	}
	q.Init()
	return q, nil
}
