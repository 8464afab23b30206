// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmq

import "code.hybscloud.com/atomix"

// snapshot is a locally cached observation of one shared node word.
//
// The observed word doubles as the expected value of a later cas, so any
// foreign mutation between observation and install (all mutations bump the
// version field) makes the install fail. A snapshot never stores a pointer
// that crosses process boundaries: cell points into this process's mapping
// of the region and idx is the self-relative node index.
type snapshot struct {
	cell *atomix.Uint64
	word node
	idx  uint32
}

// takeSnapshot observes the node at index idx with a single atomic load.
func takeSnapshot(cell *atomix.Uint64, idx uint32) snapshot {
	return snapshot{cell: cell, word: node(cell.LoadAcquire()), idx: idx}
}

// node returns the observed word.
func (s *snapshot) node() node { return s.word }

// update re-points the snapshot at another cell and re-observes it.
func (s *snapshot) update(cell *atomix.Uint64, idx uint32) {
	s.cell = cell
	s.idx = idx
	s.word = node(cell.LoadAcquire())
}

// modified re-reads the cell and reports whether it no longer holds the
// observed word.
func (s *snapshot) modified() bool {
	return node(s.cell.LoadAcquire()) != s.word
}

// cas installs updated at the snapshot's cell, expecting the observed word.
// On success the observation is refreshed so the snapshot remains usable as
// the expected value of a follow-up cas.
func (s *snapshot) cas(updated node) bool {
	if !s.cell.CompareAndSwapAcqRel(uint64(s.word), uint64(updated)) {
		return false
	}
	s.word = updated
	return true
}
