package repository

import (
	"math/rand/v2"

	"github.com/okian/trendscore/internal/domain/model"
)

// snapshotIndex keeps one window's snapshots in a treap ordered the way
// ListSnapshots returns them: score DESC, calculatedAt DESC, item id ASC.
// In-order traversal yields the ranking from best to worst.
type snapshotIndex struct {
	root *node
	byID map[string]model.Snapshot
}

// treap node
type node struct {
	snap  model.Snapshot
	prio  uint64
	left  *node
	right *node
	size  int
}

func newSnapshotIndex() *snapshotIndex {
	return &snapshotIndex{byID: make(map[string]model.Snapshot)}
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether a ranks before b.
func less(a, b model.Snapshot) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CalculatedAt.Equal(b.CalculatedAt) {
		return a.CalculatedAt.After(b.CalculatedAt)
	}
	return a.ItemID < b.ItemID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, s model.Snapshot, prio uint64) *node {
	if n == nil {
		return &node{snap: s, prio: prio, size: 1}
	}
	if less(s, n.snap) {
		n.left = insert(n.left, s, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, s, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, s model.Snapshot) *node {
	if n == nil {
		return nil
	}
	if n.snap.ItemID == s.ItemID {
		// Rotate the higher priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, s)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, s)
		}
	} else if less(s, n.snap) {
		n.left = deleteNode(n.left, s)
	} else {
		n.right = deleteNode(n.right, s)
	}
	fix(n)
	return n
}

// upsert replaces the item's previous snapshot.
func (x *snapshotIndex) upsert(s model.Snapshot) {
	if old, ok := x.byID[s.ItemID]; ok {
		x.root = deleteNode(x.root, old)
	}
	x.byID[s.ItemID] = s
	x.root = insert(x.root, s, rand.Uint64())
}

// remove drops the item's snapshot and reports whether it existed.
func (x *snapshotIndex) remove(itemID string) bool {
	old, ok := x.byID[itemID]
	if !ok {
		return false
	}
	x.root = deleteNode(x.root, old)
	delete(x.byID, itemID)
	return true
}

func (x *snapshotIndex) get(itemID string) (model.Snapshot, bool) {
	s, ok := x.byID[itemID]
	return s, ok
}

func (x *snapshotIndex) len() int {
	return nsize(x.root)
}

// ids returns the indexed item ids in no particular order.
func (x *snapshotIndex) ids() []string {
	out := make([]string, 0, len(x.byID))
	for id := range x.byID {
		out = append(out, id)
	}
	return out
}

// collect appends up to limit snapshots in rank order. A non-positive limit
// collects everything.
func (x *snapshotIndex) collect(limit int) []model.Snapshot {
	if limit <= 0 {
		limit = x.len()
	}
	out := make([]model.Snapshot, 0, min(limit, x.len()))
	collectTopN(x.root, limit, &out)
	return out
}

func collectTopN(n *node, limit int, out *[]model.Snapshot) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.snap)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}
