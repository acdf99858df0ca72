package repository

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/okian/proctor/internal/domain/types"
)

// Treap-based, in-memory Board implementation.
//
// Ordering: score DESC, then sessionID ASC (deterministic). "less" means
// ranks earlier, so an in-order traversal yields the board from riskiest
// to calmest. Node sizes make rank lookups O(log n).

// record stores what the board knows about a session.
type record struct {
	score        int
	userID       int64
	assessmentID int64
	ended        bool
}

// treap node
type node struct {
	id    int64
	score int
	prio  uint64
	left  *node
	right *node
	size  int
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

// less returns true if (aScore, aID) should appear before (bScore, bID).
func less(aScore int, aID int64, bScore int, bID int64) bool {
	if aScore != bScore {
		return aScore > bScore // higher risk ranks earlier
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id int64, score int, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id int64, score int) *node {
	if n == nil {
		return nil
	}
	if score == n.score && id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	} else if less(score, id, n.score, n.id) {
		n.left = deleteNode(n.left, id, score)
	} else {
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// countAbove returns how many nodes hold a strictly higher score.
func countAbove(n *node, score int) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit nodes in board order.
func collectTopN(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// RiskBoard ranks sessions by their current risk score. Unlike a best-score
// leaderboard, Set always moves the session to the given score.
type RiskBoard struct {
	mu   sync.RWMutex
	root *node
	byID map[int64]record
	rng  *rand.Rand
}

// NewRiskBoard constructs an empty board.
func NewRiskBoard() *RiskBoard {
	return &RiskBoard{
		byID: make(map[int64]record),
		rng:  rand.New(rand.NewPCG(0x5eed, 0xb0a2d)), //nolint:gosec // treap priorities, not security
	}
}

// Set implements Board.
func (b *RiskBoard) Set(_ context.Context, e types.RiskEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.byID[e.SessionID]; ok {
		b.root = deleteNode(b.root, e.SessionID, old.score)
	}
	b.byID[e.SessionID] = record{score: e.RiskScore, userID: e.UserID, assessmentID: e.AssessmentID, ended: e.Ended}
	b.root = insert(b.root, e.SessionID, e.RiskScore, b.rng.Uint64())
}

// Rank implements Board. Sessions with equal scores share a rank
// (standard competition ranking: 1, 2, 2, 4).
func (b *RiskBoard) Rank(_ context.Context, sessionID int64) (types.RiskEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.byID[sessionID]
	if !ok {
		return types.RiskEntry{}, ErrNotFound
	}
	return b.entry(sessionID, rec, countAbove(b.root, rec.score)+1), nil
}

// TopN implements Board.
func (b *RiskBoard) TopN(_ context.Context, n int) ([]types.RiskEntry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	nodes := make([]*node, 0, min(n, len(b.byID)))
	collectTopN(b.root, n, &nodes)

	out := make([]types.RiskEntry, len(nodes))
	for i, nd := range nodes {
		rank := i + 1
		if i > 0 && nd.score == nodes[i-1].score {
			rank = out[i-1].Rank
		}
		out[i] = b.entry(nd.id, b.byID[nd.id], rank)
	}
	return out, nil
}

// Count implements Board.
func (b *RiskBoard) Count(_ context.Context) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

func (b *RiskBoard) entry(id int64, rec record, rank int) types.RiskEntry {
	return types.RiskEntry{
		Rank:         rank,
		SessionID:    id,
		UserID:       rec.userID,
		AssessmentID: rec.assessmentID,
		RiskScore:    rec.score,
		Ended:        rec.ended,
	}
}
