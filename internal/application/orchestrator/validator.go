package orchestrator

import (
	"fmt"

	"github.com/floworc/floworc/internal/domain"
)

// Validator checks graph structure at registration time
type Validator struct{}

// NewValidator creates a new graph validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks that the graph is structurally sound: node ids are unique,
// every dependency and declared output references an existing node, every
// node has an executor, and the dependency relation is acyclic. Any
// violation is reported as a
// GraphInvalidError and the graph must not be registered.
func (v *Validator) Validate(g *domain.Graph) error {
	if g == nil {
		return &domain.GraphInvalidError{Reason: "graph is nil"}
	}
	if g.Name == "" {
		return &domain.GraphInvalidError{Reason: "graph name is required"}
	}

	if dups := g.DuplicateIDs(); len(dups) > 0 {
		return &domain.GraphInvalidError{
			Graph:  g.Name,
			Reason: fmt.Sprintf("duplicate node id %q", dups[0]),
		}
	}

	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		if err := v.validateNode(g, node); err != nil {
			return &domain.GraphInvalidError{Graph: g.Name, Reason: err.Error()}
		}
	}

	for _, spec := range g.Outputs() {
		if spec.Name == "" {
			return &domain.GraphInvalidError{Graph: g.Name, Reason: "output name is required"}
		}
		if spec.Combine != nil {
			continue
		}
		if _, exists := g.Node(spec.FromNode); !exists {
			return &domain.GraphInvalidError{
				Graph:  g.Name,
				Reason: fmt.Sprintf("output %q references non-existent node %q", spec.Name, spec.FromNode),
			}
		}
	}

	if cycle := detectCycle(g); cycle != "" {
		return &domain.GraphInvalidError{
			Graph:  g.Name,
			Reason: fmt.Sprintf("dependency cycle involving node %q", cycle),
		}
	}

	return nil
}

// validateNode checks a single node
func (v *Validator) validateNode(g *domain.Graph, node *domain.Node) error {
	if node.ID == "" {
		return fmt.Errorf("node ID is required")
	}
	if node.Execute == nil {
		return fmt.Errorf("node %q has no executor", node.ID)
	}

	seen := make(map[string]bool, len(node.DependsOn))
	for _, dep := range node.DependsOn {
		if dep == node.ID {
			return fmt.Errorf("node %q depends on itself", node.ID)
		}
		if seen[dep] {
			return fmt.Errorf("node %q declares dependency %q twice", node.ID, dep)
		}
		seen[dep] = true

		if _, exists := g.Node(dep); !exists {
			return fmt.Errorf("node %q depends on non-existent node %q", node.ID, dep)
		}
	}

	return nil
}

// detectCycle runs a depth-first search over the dependency edges with the
// classic permanent/temporary marking. It returns the id of a node involved
// in a cycle, or the empty string when the graph is acyclic.
func detectCycle(g *domain.Graph) string {
	permanent := make(map[string]bool, g.Len())
	temporary := make(map[string]bool, g.Len())

	var visit func(id string) string
	visit = func(id string) string {
		if permanent[id] {
			return ""
		}
		if temporary[id] {
			return id
		}
		temporary[id] = true

		node, _ := g.Node(id)
		for _, dep := range node.DependsOn {
			if offender := visit(dep); offender != "" {
				return offender
			}
		}

		delete(temporary, id)
		permanent[id] = true
		return ""
	}

	for _, id := range g.NodeIDs() {
		if !permanent[id] {
			if offender := visit(id); offender != "" {
				return offender
			}
		}
	}
	return ""
}
