// Package tree is the MCTS search tree's data model: nodes addressed by
// id, never by pointer ownership, so the structure cannot cycle and a
// snapshot is just a value copy of the id→node map.
package tree

import (
	"sync"

	"github.com/google/uuid"
)

// Kind is the node's role in the search tree.
type Kind string

const (
	KindRoot       Kind = "root"
	KindStrategy   Kind = "strategy"
	KindCode       Kind = "code"
	KindResult     Kind = "result"
	KindAnswer     Kind = "answer"
	KindHypothesis Kind = "hypothesis"
	KindRefinement Kind = "refinement"
	KindFinal      Kind = "final"
)

// Snapshot truncation caps applied uniformly to node fields when a tree
// is serialized for streaming.
const (
	MaxContentChars = 300
	MaxCodeChars    = 500
	MaxStdoutChars  = 300
	MaxStderrChars  = 200
	MaxResultItems  = 20 // rubric-variant train/eval result array cap
)

// RewardComponents holds the five algorithmic-composite signal values for
// a node scored by the rubric variant's evaluator, nil when unused.
type RewardComponents struct {
	Generalization float64 `json:"generalization"`
	Calibration    float64 `json:"calibration"`
	Discrimination float64 `json:"discrimination"`
	Validity       float64 `json:"validity"`
	Iteration      float64 `json:"iteration"`
}

// Node is one vertex of the search tree.
type Node struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Content  string `json:"content"`
	ParentID string `json:"parent_id,omitempty"`
	Children []string `json:"children"`
	Depth    int    `json:"depth"`

	Visits     int     `json:"visits"`
	TotalValue float64 `json:"total_value"`

	Code     string `json:"code,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`

	Variables map[string]string `json:"variables,omitempty"`

	Reward *RewardComponents `json:"reward,omitempty"`

	// History is the branch's accumulated (role, content) turns used to
	// prompt the policy for the next expansion along this branch.
	History []HistoryTurn `json:"-"`
}

// HistoryTurn is one assistant/user exchange recorded along a branch.
type HistoryTurn struct {
	Role    string
	Content string
}

// AvgValue returns TotalValue/Visits, or 0 when unvisited.
func (n *Node) AvgValue() float64 {
	if n.Visits == 0 {
		return 0
	}
	return n.TotalValue / float64(n.Visits)
}

// Tree owns a request-scoped search tree. It is mutated only by the
// owning engine on the request's logical thread of control; the mutex
// exists solely to let snapshot reads happen concurrently with a
// comparison-mode sibling engine's unrelated tree, not to permit
// concurrent mutation of this tree.
type Tree struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	rootID   string
	bestID   string // tracked by the rubric refinement variant
}

// New creates a Tree with a single root node holding the given content
// (typically the question or dataset description).
func New(rootContent string) *Tree {
	root := &Node{
		ID:      uuid.NewString(),
		Kind:    KindRoot,
		Content: rootContent,
		Depth:   0,
	}
	return &Tree{
		nodes:  map[string]*Node{root.ID: root},
		rootID: root.ID,
	}
}

// RootID returns the tree's root node id.
func (t *Tree) RootID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootID
}

// Get returns the node with id, or nil.
func (t *Tree) Get(id string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[id]
}

// AddChild creates and links a new child of parentID, returning it.
func (t *Tree) AddChild(parentID string, kind Kind, content string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.nodes[parentID]
	depth := 0
	if parent != nil {
		depth = parent.Depth + 1
	}
	child := &Node{
		ID:       uuid.NewString(),
		Kind:     kind,
		Content:  content,
		ParentID: parentID,
		Depth:    depth,
	}
	t.nodes[child.ID] = child
	if parent != nil {
		parent.Children = append(parent.Children, child.ID)
	}
	return child
}

// Backpropagate increments visits by 1 and total value by reward along
// the path from nodeID up to and including the root.
func (t *Tree) Backpropagate(nodeID string, reward float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := nodeID
	for id != "" {
		n, ok := t.nodes[id]
		if !ok {
			return
		}
		n.Visits++
		n.TotalValue += reward
		id = n.ParentID
	}
}

// SetBest records nodeID as the current best (rubric refinement variant).
func (t *Tree) SetBest(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bestID = nodeID
}

// BestID returns the tracked best node id, or "" if unset.
func (t *Tree) BestID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bestID
}

// MarkFinal sets the tracked best node's kind to KindFinal, called once
// at the end of the rubric refinement loop.
func (t *Tree) MarkFinal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[t.bestID]; ok {
		n.Kind = KindFinal
	}
}

// All returns every node, for ranking/synthesis scans.
func (t *Tree) All() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
