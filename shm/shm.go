// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

// Package shm acquires shared-memory regions for queue placement.
//
// Two flavors are provided: anonymous mappings shared with children created
// after the mapping (or with goroutines in the same process), and named
// file-backed segments that unrelated processes open by name. The package
// only hands out bytes; laying a queue over them is the root package's job.
package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Segment is a mapped shared-memory region.
type Segment struct {
	mem  []byte
	file *os.File
	path string
	name string
}

// CreateAnonymous maps a new anonymous shared region of size bytes. The
// mapping is inherited by processes created after the call; it has no name
// and cannot be opened by unrelated processes.
func CreateAnonymous(size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid segment size %d", size)
	}
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("shm: anonymous mmap failed: %w", err)
	}
	return &Segment{mem: mem}, nil
}

// Create creates a named segment of size bytes with exclusive access and
// maps it. Fails if a segment with the same name already exists.
func Create(name string, size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid segment size %d", size)
	}
	path, err := segmentPath(name)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create segment %s: %w", path, err)
	}
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: resize segment %s: %w", path, err)
	}

	mem, err := mmapFile(file, size)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	return &Segment{mem: mem, file: file, path: path, name: name}, nil
}

// Open maps an existing named segment created by another process.
func Open(name string) (*Segment, error) {
	path, err := segmentPath(name)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open segment %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: stat segment %s: %w", path, err)
	}

	mem, err := mmapFile(file, int(info.Size()))
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Segment{mem: mem, file: file, path: path, name: name}, nil
}

// Bytes returns the mapped region. The slice stays valid until Close.
func (s *Segment) Bytes() []byte { return s.mem }

// Size returns the mapped length in bytes.
func (s *Segment) Size() int { return len(s.mem) }

// Name returns the segment name, empty for anonymous segments.
func (s *Segment) Name() string { return s.name }

// Close unmaps the region and closes the backing file if any. The named
// segment itself survives for other processes; remove it with Unlink.
func (s *Segment) Close() error {
	var first error
	if s.mem != nil {
		first = unix.Munmap(s.mem)
		s.mem = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && first == nil {
			first = err
		}
		s.file = nil
	}
	return first
}

// Unlink removes the named segment from the filesystem. No-op for
// anonymous segments.
func (s *Segment) Unlink() error {
	if s.path == "" {
		return nil
	}
	return os.Remove(s.path)
}

func mmapFile(file *os.File, size int) ([]byte, error) {
	mem, err := unix.Mmap(int(file.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", file.Name(), err)
	}
	return mem, nil
}

// segmentPath places named segments under /dev/shm where the kernel backs
// them with memory, falling back to the temp directory elsewhere.
func segmentPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return "", fmt.Errorf("shm: invalid segment name %q", name)
	}
	base := "/dev/shm"
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		base = os.TempDir()
	}
	return filepath.Join(base, "shmq-"+name), nil
}
