package models

import (
	"time"

	"github.com/TFMV/specgraph/apperr"
)

// NewSnapshot builds a snapshot from raw nodes and links. Duplicate node ids
// keep their first occurrence. Links whose source or target is not a node of
// the snapshot are dropped and reported as MalformedGraph errors; they are
// never fatal.
func NewSnapshot(nodes []Node, links []Link) (*Snapshot, []error) {
	snap := &Snapshot{
		Nodes:     make([]Node, 0, len(nodes)),
		Links:     make([]Link, 0, len(links)),
		FetchedAt: time.Now(),
	}

	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if n.Type == "" {
			n.Type = TypeUnknown
		}
		snap.Nodes = append(snap.Nodes, n)
	}

	var dropped []error
	for _, l := range links {
		if !seen[l.Source] {
			dropped = append(dropped, apperr.MalformedLink(l.Source, l.Target, l.Source))
			continue
		}
		if !seen[l.Target] {
			dropped = append(dropped, apperr.MalformedLink(l.Source, l.Target, l.Target))
			continue
		}
		snap.Links = append(snap.Links, l)
	}

	return snap, dropped
}

// Valid reports whether every link endpoint resolves to a node.
func (s *Snapshot) Valid() bool {
	index := s.NodeIndex()
	for _, l := range s.Links {
		if _, ok := index[l.Source]; !ok {
			return false
		}
		if _, ok := index[l.Target]; !ok {
			return false
		}
	}
	return true
}

// NodeIndex maps node ids to their position in Nodes.
func (s *Snapshot) NodeIndex() map[string]int {
	index := make(map[string]int, len(s.Nodes))
	for i, n := range s.Nodes {
		index[n.ID] = i
	}
	return index
}
