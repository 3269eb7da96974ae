// Package graphstore implements the typed property graph: nodes and edges
// drawn from closed label/relation enumerations, partitioned into a life
// domain and a work domain, with bitemporal edge validity.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/knowlode/knowlode/internal/store"
)

// Node is a graph node: an identity, a closed label, and open properties.
type Node struct {
	ID         string
	Label      NodeLabel
	Properties map[string]any
}

// Edge is a directed, bitemporal graph edge.
//
// ValidUntil nil means the edge is still true ("∅"). When both ValidFrom
// and ValidUntil are set, ValidFrom must not be after ValidUntil.
type Edge struct {
	SourceID   string
	TargetID   string
	Relation   RelationType
	Properties map[string]any
	Weight     float64
	ValidFrom  time.Time
	ValidUntil *time.Time
}

// ValidAt reports whether the edge is valid at instant t:
// ValidFrom <= t <= ValidUntil, or ValidUntil is nil (still true).
func (e Edge) ValidAt(t time.Time) bool {
	if t.Before(e.ValidFrom) {
		return false
	}
	if e.ValidUntil == nil {
		return true
	}
	return !t.After(*e.ValidUntil)
}

// Direction selects which edges [GraphStore.Neighbors] follows.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// NeighborOptions narrows a [GraphStore.Neighbors] call.
type NeighborOptions struct {
	// Direction defaults to Outgoing.
	Direction Direction

	// Relation restricts traversal to a single relation type. Zero value
	// (empty string) means any relation.
	Relation RelationType

	// AtTime restricts traversal to edges valid at this instant. Zero value
	// means "no time filter" (all edges, regardless of validity window).
	AtTime time.Time
}

// Snapshot is a compact context window around a single node: the node
// itself, every node directly connected to it in either direction, and the
// edges between them. This is the graph-store analogue of the teacher's
// VisibleSubgraph/IdentitySnapshot — sized to drop straight into a
// retrieval result or a cascade prompt without a second traversal.
type Snapshot struct {
	Node      Node
	Neighbors []Node
	Edges     []Edge
}

// GraphStore is the uniform contract both backends (memory, Postgres)
// implement. All methods are safe for concurrent use.
//
// Identity is label+primary-key property; upsert-by-key ("merge") is a
// pipeline-layer concern built from FindNodes + AddNode/UpdateNode, not part
// of this interface.
type GraphStore interface {
	// AddNode creates or completely replaces a node. Returns
	// [store.ErrValidationFailed] if node.Label is outside domain.
	AddNode(ctx context.Context, domain Domain, node Node) error

	// GetNode retrieves a node by ID. Returns [store.ErrNotFound] if absent.
	GetNode(ctx context.Context, id string) (Node, error)

	// UpdateNode merges properties into the existing node's Properties.
	// Returns [store.ErrNotFound] if the node does not exist.
	UpdateNode(ctx context.Context, id string, properties map[string]any) error

	// DeleteNode removes a node and all edges touching it.
	// Deleting a non-existent node is not an error.
	DeleteNode(ctx context.Context, id string) error

	// FindNodes returns nodes with the given label whose Properties satisfy
	// propertyQuery (exact match, AND-combined). An empty propertyQuery
	// matches every node with that label. A zero label matches any label.
	FindNodes(ctx context.Context, label NodeLabel, propertyQuery map[string]any) ([]Node, error)

	// AddEdge creates or completely replaces the edge identified by
	// (SourceID, TargetID, Relation). Returns [store.ErrValidationFailed] if
	// edge.Relation is outside domain, or if ValidUntil precedes ValidFrom.
	AddEdge(ctx context.Context, domain Domain, edge Edge) error

	// DeleteEdge removes the edge identified by (sourceID, targetID,
	// relation). Deleting a non-existent edge is not an error.
	DeleteEdge(ctx context.Context, sourceID, targetID string, relation RelationType) error

	// EdgesBetween returns all edges from sourceID to targetID, regardless
	// of relation or time validity.
	EdgesBetween(ctx context.Context, sourceID, targetID string) ([]Edge, error)

	// Neighbors returns the nodes reachable from nodeID by a single hop
	// matching opts.
	Neighbors(ctx context.Context, nodeID string, opts NeighborOptions) ([]Node, error)

	// Snapshot returns a compact context window around nodeID: the node
	// itself, its directly-connected neighbors, and the edges between them.
	// Returns [store.ErrNotFound] if nodeID does not exist.
	Snapshot(ctx context.Context, nodeID string) (Snapshot, error)

	// Count returns the total number of nodes.
	Count(ctx context.Context) (int, error)

	// Clear removes all nodes and edges.
	Clear(ctx context.Context) error
}

// ValidateEdgeWindow returns [store.ErrValidationFailed] if edge's validity
// window is inverted (ValidUntil set and before ValidFrom).
func ValidateEdgeWindow(edge Edge) error {
	if edge.ValidUntil != nil && edge.ValidUntil.Before(edge.ValidFrom) {
		return fmt.Errorf("graphstore: edge %s-%s-%s: %w: valid_until before valid_from",
			edge.SourceID, edge.Relation, edge.TargetID, store.ErrValidationFailed)
	}
	return nil
}
