// Package importer bulk-loads externally authored knowledge graph nodes and
// edges — a YAML snapshot of facts a user already has, e.g. exported
// contacts, a project roster, or a reading list — into a
// [graphstore.GraphStore] ahead of normal ingest traffic.
package importer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/knowlode/knowlode/internal/store/graphstore"
)

// NodeImport is the declarative, YAML-friendly description of a single graph
// node and its outgoing relationships.
type NodeImport struct {
	// ID is a unique identifier within the import file. Auto-generated if
	// empty.
	ID string `yaml:"id" json:"id"`

	// Label classifies the node (Person, Project, Document, ...).
	Label graphstore.NodeLabel `yaml:"label" json:"label"`

	// Properties holds arbitrary node metadata.
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`

	// Relationships declares edges from this node to others in the same
	// file, resolved by ID after every node has been created.
	Relationships []RelationshipImport `yaml:"relationships,omitempty" json:"relationships,omitempty"`
}

// RelationshipImport declares a connection from a [NodeImport] to another
// node in the same import file.
type RelationshipImport struct {
	// TargetID is the ID of the related node, as declared elsewhere in the
	// same file.
	TargetID string `yaml:"target_id" json:"target_id"`

	// Relation describes the connection (KNOWS, WORKS_ON, ...).
	Relation graphstore.RelationType `yaml:"relation" json:"relation"`

	// Weight is the edge's retrieval weight. Zero defaults to 1.0.
	Weight float64 `yaml:"weight,omitempty" json:"weight,omitempty"`

	// Bidirectional also creates the reverse edge.
	Bidirectional bool `yaml:"bidirectional,omitempty" json:"bidirectional,omitempty"`
}

// Validate checks a [NodeImport] for required fields.
//
// Rules:
//   - Label must be non-empty (the store itself rejects labels outside the
//     target domain; this only catches an empty value early).
//   - Every [RelationshipImport] must name a TargetID and a Relation.
func Validate(node NodeImport) error {
	var errs []error

	if node.Label == "" {
		errs = append(errs, fmt.Errorf("node %q: label must not be empty", node.ID))
	}
	for i, rel := range node.Relationships {
		if rel.TargetID == "" {
			errs = append(errs, fmt.Errorf("node %q: relationship[%d]: target_id must not be empty", node.ID, i))
		}
		if rel.Relation == "" {
			errs = append(errs, fmt.Errorf("node %q: relationship[%d]: relation must not be empty", node.ID, i))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Import loads every node in nodes into gs under domain, then resolves
// relationships into edges once all nodes exist. It is best-effort: nodes
// are created one at a time and the count of successfully created nodes is
// returned alongside the first error encountered, which aborts the import.
func Import(ctx context.Context, gs graphstore.GraphStore, domain graphstore.Domain, nodes []NodeImport) (int, error) {
	ids := make(map[string]string, len(nodes)) // declared ID (or generated ID) -> resolved ID
	resolved := make([]string, len(nodes))     // node index -> resolved ID
	count := 0

	for i, n := range nodes {
		if err := Validate(n); err != nil {
			return count, fmt.Errorf("importer: node at index %d: %w", i, err)
		}

		id := n.ID
		if id == "" {
			generated, err := generateID()
			if err != nil {
				return count, fmt.Errorf("importer: generate id: %w", err)
			}
			id = generated
		}

		node := graphstore.Node{ID: id, Label: n.Label, Properties: n.Properties}
		if err := gs.AddNode(ctx, domain, node); err != nil {
			return count, fmt.Errorf("importer: add node %q: %w", id, err)
		}

		key := n.ID
		if key == "" {
			key = id
		}
		ids[key] = id
		resolved[i] = id
		count++
	}

	for i, n := range nodes {
		sourceID := resolved[i]
		for _, rel := range n.Relationships {
			targetID, ok := ids[rel.TargetID]
			if !ok {
				return count, fmt.Errorf("importer: node at index %d: relationship target %q not found in import file", i, rel.TargetID)
			}

			weight := rel.Weight
			if weight == 0 {
				weight = 1.0
			}

			edge := graphstore.Edge{SourceID: sourceID, TargetID: targetID, Relation: rel.Relation, Weight: weight}
			if err := gs.AddEdge(ctx, domain, edge); err != nil {
				return count, fmt.Errorf("importer: add edge %s-%s-%s: %w", sourceID, rel.Relation, targetID, err)
			}
			if rel.Bidirectional {
				reverse := edge
				reverse.SourceID, reverse.TargetID = edge.TargetID, edge.SourceID
				if err := gs.AddEdge(ctx, domain, reverse); err != nil {
					return count, fmt.Errorf("importer: add reverse edge %s-%s-%s: %w", reverse.SourceID, reverse.Relation, reverse.TargetID, err)
				}
			}
		}
	}

	return count, nil
}

// generateID produces a random 16-byte hex string using crypto/rand.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
