// Package models provides the data structures shared by the specgraph
// packages: graph snapshots, highlight sets and query results.
package models

import (
	"sort"
	"strings"
	"time"
)

// NodeType classifies a node by the kind of change it represents.
type NodeType string

const (
	TypeAdded    NodeType = "added"
	TypeDeleted  NodeType = "deleted"
	TypeModified NodeType = "modified"
	TypeUnknown  NodeType = "unknown"
)

// ParseNodeType maps a wire type string onto a NodeType. The graph builder
// labels removals as "removed", which is treated as deleted. Anything else,
// including an empty string, is unknown.
func ParseNodeType(s string) NodeType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "added":
		return TypeAdded
	case "deleted", "removed":
		return TypeDeleted
	case "modified":
		return TypeModified
	default:
		return TypeUnknown
	}
}

// Node is a change entity in a snapshot.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
}

// Link connects two nodes of the same snapshot. A zero RestLength means the
// simulation default applies.
type Link struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	RestLength float64 `json:"-"`
}

// Snapshot is one fetched graph. It is never mutated after construction;
// use NewSnapshot so links with unresolved endpoints are dropped.
type Snapshot struct {
	Nodes     []Node    `json:"nodes"`
	Links     []Link    `json:"links"`
	FetchedAt time.Time `json:"fetched_at"`
}

// HighlightSet is an immutable set of node ids. The zero value is empty.
type HighlightSet struct {
	ids map[string]struct{}
}

// NewHighlightSet builds a set from ids. Empty strings are ignored.
func NewHighlightSet(ids ...string) HighlightSet {
	set := HighlightSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id == "" {
			continue
		}
		set.ids[id] = struct{}{}
	}
	return set
}

// Has reports whether id is in the set.
func (h HighlightSet) Has(id string) bool {
	_, ok := h.ids[id]
	return ok
}

// Len returns the number of ids in the set.
func (h HighlightSet) Len() int {
	return len(h.ids)
}

// IDs returns the members in sorted order.
func (h HighlightSet) IDs() []string {
	ids := make([]string, 0, len(h.ids))
	for id := range h.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// QueryResult is the answer returned by the query collaborator.
type QueryResult struct {
	Answer    string   `json:"answer"`
	Highlight []string `json:"highlight"`
}

