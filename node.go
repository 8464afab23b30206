// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmq

// Free-list node word layout (64 bits, one CAS word):
//
//	bits  0..25  next    index of the successor node (nodeCount = end of list)
//	bits 26..31  version bumped on every mutation (ABA guard)
//	bits 32..61  count   length of this run in chunks
//	bits 62..63  status  AVAILABLE / JOIN_HEAD / JOIN_TAIL
//
// Every logical mutation produces a freshly packed word with version+1 and
// is installed by a single CompareAndSwap on the whole word. Splitting the
// word into independently written halves would break ABA protection.
const (
	nodeNextBits    = 26
	nodeVersionBits = 6
	nodeCountBits   = 30

	nodeNextMask    = 1<<nodeNextBits - 1
	nodeVersionMask = 1<<nodeVersionBits - 1
	nodeCountMask   = 1<<nodeCountBits - 1
	nodeStatusMask  = 0b11

	nodeVersionShift = nodeNextBits
	nodeCountShift   = nodeNextBits + nodeVersionBits
	nodeStatusShift  = nodeCountShift + nodeCountBits
)

// Node status values. joinHead and joinTail are transient marks naming the
// two endpoints of an in-progress coalesce; a node carrying joinTail must
// never be treated as an independent free run.
const (
	statusAvailable uint32 = 0
	statusJoinHead  uint32 = 1
	statusJoinTail  uint32 = 2
)

// nodeCountLimit bounds the node index space to what the next field can
// address with headroom for the end-of-list sentinel value.
const nodeCountLimit = 1 << 24

// node is the packed free-list node word.
type node uint64

func packNode(next, version, count, status uint32) node {
	return node(uint64(next&nodeNextMask) |
		uint64(version&nodeVersionMask)<<nodeVersionShift |
		uint64(count&nodeCountMask)<<nodeCountShift |
		uint64(status&nodeStatusMask)<<nodeStatusShift)
}

func (n node) next() uint32    { return uint32(n) & nodeNextMask }
func (n node) version() uint32 { return uint32(n>>nodeVersionShift) & nodeVersionMask }
func (n node) count() uint32   { return uint32(n>>nodeCountShift) & nodeCountMask }
func (n node) status() uint32  { return uint32(n>>nodeStatusShift) & nodeStatusMask }

func (n node) available() bool { return n.status() == statusAvailable }
func (n node) joinHead() bool  { return n.status()&statusJoinHead != 0 }
func (n node) joinTail() bool  { return n.status()&statusJoinTail != 0 }

// withNext returns the word relinked to newNext, version bumped.
func (n node) withNext(newNext uint32) node {
	return packNode(newNext, n.version()+1, n.count(), n.status())
}

// withCount returns the word resized to newCount chunks, version bumped.
func (n node) withCount(newCount uint32) node {
	return packNode(n.next(), n.version()+1, newCount, n.status())
}

// withStatus returns the word with the given status, version bumped.
func (n node) withStatus(newStatus uint32) node {
	return packNode(n.next(), n.version()+1, n.count(), newStatus)
}

// join merges the adjacent successor tail into n: the merged run takes the
// tail's successor link and the summed count. The head's joinHead mark and
// the tail's joinTail mark are cleared; the other half of each status is
// preserved.
func (n node) join(tail node) node {
	status := (n.status() &^ statusJoinHead) | (tail.status() &^ statusJoinTail)
	return packNode(tail.next(), n.version()+1, n.count()+tail.count(), status)
}
