package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a discovered node
type Status string

const (
	StatusPending     Status = "pending"
	StatusSearching   Status = "searching"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusRateLimited Status = "rate_limited"
)

// Terminal reports whether the status will not change again without a new search.
// Unknown statuses are treated as still in flight.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusRateLimited:
		return true
	default:
		return false
	}
}

// Node is one discovered resource in the exploration tree
type Node struct {
	ID           string   `json:"id"`
	ParentID     *string  `json:"parent_id"`
	Children     []string `json:"children"`
	Title        string   `json:"title"`
	URL          string   `json:"url,omitempty"`
	Source       string   `json:"source,omitempty"`
	Snippet      string   `json:"snippet,omitempty"`
	Image        string   `json:"image,omitempty"`
	SearchQuery  string   `json:"search_query,omitempty"`
	Status       Status   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Timestamp    string   `json:"timestamp,omitempty"`
}

// IsRoot reports whether the node has no parent. An empty parent id counts as
// absent, since the exploration process has been seen sending both forms.
func (n Node) IsRoot() bool {
	return n.ParentID == nil || *n.ParentID == ""
}

// Time parses the node timestamp. The zero time is returned when it is missing
// or in a format we don't recognize.
func (n Node) Time() time.Time {
	if n.Timestamp == "" {
		return time.Time{}
	}
	formats := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, n.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Snapshot is a full tree as delivered by a single tree_update event.
// IDs keeps the order in which nodes appeared in the payload, which is what
// makes root selection deterministic when the tree is malformed.
type Snapshot struct {
	IDs   []string
	Nodes map[string]Node

	// Rekeyed lists ids whose embedded "id" field disagreed with the map key
	// they were delivered under. The key wins.
	Rekeyed []string
}

// NewSnapshot builds a snapshot from nodes in the given order
func NewSnapshot(nodes ...Node) Snapshot {
	s := Snapshot{Nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		s.Add(n.ID, n)
	}
	return s
}

// Add inserts or replaces a node under key. A replaced node keeps its
// original position.
func (s *Snapshot) Add(key string, n Node) {
	if s.Nodes == nil {
		s.Nodes = make(map[string]Node)
	}
	if n.ID == "" {
		n.ID = key
	} else if n.ID != key {
		s.Rekeyed = append(s.Rekeyed, key)
		n.ID = key
	}
	if _, exists := s.Nodes[key]; !exists {
		s.IDs = append(s.IDs, key)
	}
	s.Nodes[key] = n
}

// Len returns the number of distinct nodes
func (s Snapshot) Len() int {
	return len(s.IDs)
}

// UnmarshalJSON decodes an id -> node object while keeping key order
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("tree snapshot: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("tree snapshot: expected an object of nodes")
	}

	*s = Snapshot{Nodes: make(map[string]Node)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("tree snapshot: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("tree snapshot: unexpected key %v", keyTok)
		}

		var n Node
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("tree snapshot: node %q: %w", key, err)
		}
		s.Add(key, n)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("tree snapshot: %w", err)
	}
	return nil
}

// MarshalJSON encodes the snapshot back into an ordered id -> node object
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, id := range s.IDs {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.Nodes[id])
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
