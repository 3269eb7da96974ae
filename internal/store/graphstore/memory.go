package graphstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/knowlode/knowlode/internal/store"
)

var _ GraphStore = (*MemStore)(nil)

type edgeKey struct {
	source, target string
	relation        RelationType
}

// MemStore is a thread-safe, in-memory [GraphStore]. Suitable for tests and
// single-process deployments without Postgres.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[string]Node
	edges map[edgeKey]Edge
}

// NewMemStore returns an initialised MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes: make(map[string]Node),
		edges: make(map[edgeKey]Edge),
	}
}

func (s *MemStore) AddNode(ctx context.Context, domain Domain, node Node) error {
	if !domain.AllowsLabel(node.Label) {
		return fmt.Errorf("graphstore: add node %s: %w: label %q outside domain %q", node.ID, store.ErrValidationFailed, node.Label, domain)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if node.Properties == nil {
		node.Properties = map[string]any{}
	}
	s.nodes[node.ID] = node
	return nil
}

func (s *MemStore) GetNode(ctx context.Context, id string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("graphstore: get node %s: %w", id, store.ErrNotFound)
	}
	return n, nil
}

func (s *MemStore) UpdateNode(ctx context.Context, id string, properties map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("graphstore: update node %s: %w", id, store.ErrNotFound)
	}
	if n.Properties == nil {
		n.Properties = map[string]any{}
	}
	for k, v := range properties {
		n.Properties[k] = v
	}
	s.nodes[id] = n
	return nil
}

func (s *MemStore) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
	for k := range s.edges {
		if k.source == id || k.target == id {
			delete(s.edges, k)
		}
	}
	return nil
}

func (s *MemStore) FindNodes(ctx context.Context, label NodeLabel, propertyQuery map[string]any) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Node
	for _, n := range s.nodes {
		if label != "" && n.Label != label {
			continue
		}
		if !matchesProperties(n.Properties, propertyQuery) {
			continue
		}
		result = append(result, n)
	}
	if result == nil {
		result = []Node{}
	}
	return result, nil
}

func matchesProperties(properties, query map[string]any) bool {
	for k, want := range query {
		got, ok := properties[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func (s *MemStore) AddEdge(ctx context.Context, domain Domain, edge Edge) error {
	if !domain.AllowsRelation(edge.Relation) {
		return fmt.Errorf("graphstore: add edge %s-%s-%s: %w: relation outside domain %q",
			edge.SourceID, edge.Relation, edge.TargetID, store.ErrValidationFailed, domain)
	}
	if err := ValidateEdgeWindow(edge); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if edge.Properties == nil {
		edge.Properties = map[string]any{}
	}
	s.edges[edgeKey{edge.SourceID, edge.TargetID, edge.Relation}] = edge
	return nil
}

func (s *MemStore) DeleteEdge(ctx context.Context, sourceID, targetID string, relation RelationType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edges, edgeKey{sourceID, targetID, relation})
	return nil
}

func (s *MemStore) EdgesBetween(ctx context.Context, sourceID, targetID string) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Edge
	for k, e := range s.edges {
		if k.source == sourceID && k.target == targetID {
			result = append(result, e)
		}
	}
	if result == nil {
		result = []Edge{}
	}
	return result, nil
}

func (s *MemStore) Neighbors(ctx context.Context, nodeID string, opts NeighborOptions) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]struct{}{}
	var neighborIDs []string
	consider := func(id string, e Edge) {
		if opts.Relation != "" && e.Relation != opts.Relation {
			return
		}
		if !opts.AtTime.IsZero() && !e.ValidAt(opts.AtTime) {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		neighborIDs = append(neighborIDs, id)
	}

	for k, e := range s.edges {
		if (opts.Direction == Outgoing || opts.Direction == Both) && k.source == nodeID {
			consider(k.target, e)
		}
		if (opts.Direction == Incoming || opts.Direction == Both) && k.target == nodeID {
			consider(k.source, e)
		}
	}

	result := make([]Node, 0, len(neighborIDs))
	for _, id := range neighborIDs {
		if n, ok := s.nodes[id]; ok {
			result = append(result, n)
		}
	}
	return result, nil
}

func (s *MemStore) Snapshot(ctx context.Context, nodeID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return Snapshot{}, fmt.Errorf("graphstore: snapshot %s: %w", nodeID, store.ErrNotFound)
	}

	neighborIDs := map[string]struct{}{}
	var edges []Edge
	for k, e := range s.edges {
		switch nodeID {
		case k.source:
			edges = append(edges, e)
			neighborIDs[k.target] = struct{}{}
		case k.target:
			edges = append(edges, e)
			neighborIDs[k.source] = struct{}{}
		}
	}

	neighbors := make([]Node, 0, len(neighborIDs))
	for id := range neighborIDs {
		if n, ok := s.nodes[id]; ok {
			neighbors = append(neighbors, n)
		}
	}
	if edges == nil {
		edges = []Edge{}
	}
	return Snapshot{Node: node, Neighbors: neighbors, Edges: edges}, nil
}

func (s *MemStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), nil
}

func (s *MemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]Node)
	s.edges = make(map[edgeKey]Edge)
	return nil
}
