package models

// FindNode returns the node with the given id.
func (s *Snapshot) FindNode(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodesByType returns all nodes of a specific type
func (s *Snapshot) NodesByType(t NodeType) []Node {
	var result []Node
	for _, n := range s.Nodes {
		if n.Type == t {
			result = append(result, n)
		}
	}
	return result
}

// Neighbors returns the ids of nodes linked to id in either direction,
// in link order and without duplicates.
func (s *Snapshot) Neighbors(id string) []string {
	var result []string
	seen := make(map[string]bool)
	add := func(other string) {
		if other == id || seen[other] {
			return
		}
		seen[other] = true
		result = append(result, other)
	}
	for _, l := range s.Links {
		switch id {
		case l.Source:
			add(l.Target)
		case l.Target:
			add(l.Source)
		}
	}
	return result
}

// Counts returns the number of nodes per type.
func (s *Snapshot) Counts() map[NodeType]int {
	counts := make(map[NodeType]int, 4)
	for _, n := range s.Nodes {
		counts[n.Type]++
	}
	return counts
}
