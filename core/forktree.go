package core

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var forkTreeLog = logrus.WithField("subsystem", "forktree")

// ForkScore is the (height, -sum_of_pow_min_complements) lexicographic tip
// score from §4.F / Open Question 1: the longer chain wins; among equal
// heights the chain with the lower cumulative complement (the one the
// network found easier to produce) wins ties.
type ForkScore struct {
	Height     BlockNumber
	Complement int64 // sum of (max_pow_min - block.pow_min) along the branch
}

// Less reports whether s scores strictly worse than other.
func (s ForkScore) Less(other ForkScore) bool {
	if s.Height != other.Height {
		return s.Height < other.Height
	}
	return s.Complement > other.Complement // lower complement wins, so "greater" is worse
}

// forkNode is one block tracked in the fork tree, whether on the main
// chain or a side branch.
type forkNode struct {
	Stamp    Blockstamp
	Parent   Blockstamp
	WriteSet *WriteSet // journaled for this node's apply, the inverse source for revert
	Score    ForkScore
}

// ForkTree indexes every block reachable within a bounded window behind
// the current main tip, tracks each tip's score, and drives the
// rollback-reapply procedure when a side branch overtakes the main chain.
type ForkTree struct {
	mu      sync.Mutex
	nodes   map[Blockstamp]*forkNode
	tips    map[Blockstamp]bool
	orphans map[Hash][]*Block // keyed by the missing parent's hash

	mainTip Blockstamp

	// ReapplyMargin is the number of blocks a side tip must lead the main
	// tip by before a rollback-reapply is triggered (§4.F: "≥ 3 blocks").
	ReapplyMargin BlockNumber
}

// NewForkTree returns an empty fork tree.
func NewForkTree() *ForkTree {
	return &ForkTree{
		nodes:         make(map[Blockstamp]*forkNode),
		tips:          make(map[Blockstamp]bool),
		orphans:       make(map[Hash][]*Block),
		ReapplyMargin: 3,
	}
}

// Record indexes a validated block (main chain or side branch) together
// with the write-set that applied it, and updates tip bookkeeping.
func (ft *ForkTree) Record(stamp, parent Blockstamp, ws *WriteSet, score ForkScore) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.nodes[stamp] = &forkNode{Stamp: stamp, Parent: parent, WriteSet: ws, Score: score}
	delete(ft.tips, parent)
	ft.tips[stamp] = true
	if ft.mainTip.IsZero() {
		ft.mainTip = stamp
	}
}

// SetMainTip updates the tracked main-chain tip, called after the engine
// applies a block that directly extends it, or after a rollback-reapply
// completes.
func (ft *ForkTree) SetMainTip(stamp Blockstamp) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.mainTip = stamp
}

// MainTip returns the currently tracked main-chain tip.
func (ft *ForkTree) MainTip() Blockstamp {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.mainTip
}

// BestSideTip returns the highest-scoring tip that is not the main tip, if
// any, and whether it outscores the main tip by the reapply margin.
func (ft *ForkTree) BestSideTip() (Blockstamp, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	mainNode, ok := ft.nodes[ft.mainTip]
	if !ok {
		return Blockstamp{}, false
	}
	var best Blockstamp
	var bestScore ForkScore
	found := false
	for stamp := range ft.tips {
		if stamp == ft.mainTip {
			continue
		}
		n := ft.nodes[stamp]
		if !found || bestScore.Less(n.Score) {
			best, bestScore, found = stamp, n.Score, true
		}
	}
	if !found {
		return Blockstamp{}, false
	}
	return best, bestScore.Height >= mainNode.Score.Height+ft.ReapplyMargin
}

// CommonAncestor walks both branches' parent pointers back to their first
// shared blockstamp (§4.F step 1).
func (ft *ForkTree) CommonAncestor(a, b Blockstamp) (Blockstamp, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	seen := map[Blockstamp]bool{}
	for cur := a; ; {
		seen[cur] = true
		n, ok := ft.nodes[cur]
		if !ok || n.Parent.IsZero() && n.Stamp.Number == 0 {
			break
		}
		if n.Parent == cur {
			break
		}
		cur = n.Parent
	}
	for cur := b; ; {
		if seen[cur] {
			return cur, true
		}
		n, ok := ft.nodes[cur]
		if !ok {
			return Blockstamp{}, false
		}
		if n.Stamp.Number == 0 {
			return Blockstamp{}, false
		}
		cur = n.Parent
	}
}

// PathTo returns the chain of blockstamps from (exclusive) ancestor up to
// (inclusive) tip, oldest first — the blocks step 3's reapply must
// re-validate in order.
func (ft *ForkTree) PathTo(ancestor, tip Blockstamp) []Blockstamp {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var rev []Blockstamp
	for cur := tip; cur != ancestor; {
		rev = append(rev, cur)
		n, ok := ft.nodes[cur]
		if !ok {
			break
		}
		cur = n.Parent
	}
	out := make([]Blockstamp, len(rev))
	for i, s := range rev {
		out[len(rev)-1-i] = s
	}
	return out
}

// WriteSetAt returns the journaled write-set for a previously recorded
// blockstamp, the source of its inverse for revert.
func (ft *ForkTree) WriteSetAt(stamp Blockstamp) (*WriteSet, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	n, ok := ft.nodes[stamp]
	if !ok {
		return nil, false
	}
	return n.WriteSet, true
}

// ScoreAt returns the cumulative ForkScore recorded for a previously
// indexed blockstamp, letting a child block accumulate its own score from
// its parent's rather than starting over at every height (§4.F/§9a).
func (ft *ForkTree) ScoreAt(stamp Blockstamp) (ForkScore, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	n, ok := ft.nodes[stamp]
	if !ok {
		return ForkScore{}, false
	}
	return n.Score, true
}

// ParkOrphan stores a block whose parent has not yet been seen, keyed by
// the missing parent's hash (§4.F "Orphan handling").
func (ft *ForkTree) ParkOrphan(b *Block) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.orphans[b.PreviousHash] = append(ft.orphans[b.PreviousHash], b)
	forkTreeLog.Debugf("parked orphan block %d awaiting parent %s", b.Number, b.PreviousHash)
}

// ReleaseOrphans returns and forgets every block parked waiting on
// parentHash, to be retried depth-first by the engine.
func (ft *ForkTree) ReleaseOrphans(parentHash Hash) []*Block {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	children := ft.orphans[parentHash]
	delete(ft.orphans, parentHash)
	return children
}
