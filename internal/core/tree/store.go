// Package tree holds the authoritative in-memory snapshot of the discovery tree.
//
// The exploration process resends the whole tree on every update, so the
// store has no merge logic: Replace swaps the entire node set. Insertion order
// is kept because root selection on a malformed tree has to be deterministic.
package tree

import (
	"github.com/neilberkman/linkscout/internal/core/models"
)

// Store is the current node set. It is not safe for concurrent use; the
// session controller owns it from a single goroutine.
type Store struct {
	order []string
	nodes map[string]models.Node
}

// New creates an empty store
func New() *Store {
	return &Store{nodes: make(map[string]models.Node)}
}

// Replace atomically swaps the store contents for the snapshot. Nothing from
// the previous snapshot survives unless it is also in the new one.
func (s *Store) Replace(snap models.Snapshot) {
	order := make([]string, 0, len(snap.IDs))
	nodes := make(map[string]models.Node, len(snap.IDs))
	for _, id := range snap.IDs {
		n, ok := snap.Nodes[id]
		if !ok {
			continue
		}
		if _, dup := nodes[id]; !dup {
			order = append(order, id)
		}
		n.Children = append([]string(nil), n.Children...)
		nodes[id] = n
	}
	s.order = order
	s.nodes = nodes
}

// Clear empties the store
func (s *Store) Clear() {
	s.order = nil
	s.nodes = make(map[string]models.Node)
}

// Len returns the number of nodes
func (s *Store) Len() int {
	return len(s.order)
}

// Get looks up a node by id
func (s *Store) Get(id string) (models.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Nodes returns the nodes in snapshot order
func (s *Store) Nodes() []models.Node {
	out := make([]models.Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id])
	}
	return out
}

// FindRoot returns the first node without a parent, in snapshot order
func (s *Store) FindRoot() (models.Node, bool) {
	for _, id := range s.order {
		if n := s.nodes[id]; n.IsRoot() {
			return n, true
		}
	}
	return models.Node{}, false
}

// Roots returns every parentless node. More than one means the tree is
// malformed; callers use it for diagnostics only.
func (s *Store) Roots() []models.Node {
	var roots []models.Node
	for _, id := range s.order {
		if n := s.nodes[id]; n.IsRoot() {
			roots = append(roots, n)
		}
	}
	return roots
}

// ResolveChildren returns the node's children that exist in the store, in
// the order the parent lists them. Ids that aren't delivered yet are skipped.
func (s *Store) ResolveChildren(n models.Node) []models.Node {
	if len(n.Children) == 0 {
		return nil
	}
	out := make([]models.Node, 0, len(n.Children))
	for _, id := range n.Children {
		if child, ok := s.nodes[id]; ok {
			out = append(out, child)
		}
	}
	return out
}

// IsComplete reports whether every node is terminal. An empty store has not
// started yet, so it is never complete.
func (s *Store) IsComplete() bool {
	if len(s.order) == 0 {
		return false
	}
	for _, id := range s.order {
		if !s.nodes[id].Status.Terminal() {
			return false
		}
	}
	return true
}

// Counts is a histogram of node statuses
type Counts map[models.Status]int

// Total sums every bucket
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Counts returns how many nodes are in each status
func (s *Store) Counts() Counts {
	c := make(Counts)
	for _, id := range s.order {
		c[s.nodes[id].Status]++
	}
	return c
}
