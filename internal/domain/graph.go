package domain

// InputSpec declares a run-level input the graph expects. The validator is
// optional; when present it runs before any node executes.
type InputSpec struct {
	Name     string
	Validate Validator
}

// OutputSpec declares how one named run output is derived once all reachable
// nodes completed. Exactly one of FromNode or Combine should be set. When the
// source node never recorded a result the declared default is used, or the
// run fails with OutputUnavailableError when no default was declared.
type OutputSpec struct {
	Name       string
	FromNode   string
	Combine    func(view ContextView) (interface{}, error)
	Default    interface{}
	HasDefault bool
}

// Graph is an immutable description of a workflow: named nodes, their
// dependency edges, declared inputs and declared outputs. Graphs are built
// once, validated at registration time and never mutated afterwards.
type Graph struct {
	Name string

	nodes      map[string]*Node
	order      []string
	duplicates []string

	inputs  []InputSpec
	outputs []OutputSpec
}

// NewGraph creates an empty graph with the given name.
func NewGraph(name string) *Graph {
	return &Graph{
		Name:  name,
		nodes: make(map[string]*Node),
	}
}

// AddNode appends a node to the graph. Insertion order is retained and used
// as the deterministic dispatch tie-break. A repeated id is recorded as a
// collision rather than rejected here, so that registration reports all
// structural problems through a single path.
func (g *Graph) AddNode(n *Node) *Graph {
	if _, exists := g.nodes[n.ID]; exists {
		g.duplicates = append(g.duplicates, n.ID)
		return g
	}
	g.order = append(g.order, n.ID)
	g.nodes[n.ID] = n
	return g
}

// RequireInput declares a run-level input, optionally with a validator.
func (g *Graph) RequireInput(name string, v Validator) *Graph {
	g.inputs = append(g.inputs, InputSpec{Name: name, Validate: v})
	return g
}

// DeclareOutput declares a run output derivation rule.
func (g *Graph) DeclareOutput(spec OutputSpec) *Graph {
	g.outputs = append(g.outputs, spec)
	return g
}

// Node returns the node with the given id, if present.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// DuplicateIDs returns node ids that were added more than once, in the
// order the collisions happened.
func (g *Graph) DuplicateIDs() []string {
	ids := make([]string, len(g.duplicates))
	copy(ids, g.duplicates)
	return ids
}

// NodeIDs returns all node ids in insertion order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Inputs returns the declared run-level inputs.
func (g *Graph) Inputs() []InputSpec {
	return g.inputs
}

// Outputs returns the declared output rules.
func (g *Graph) Outputs() []OutputSpec {
	return g.outputs
}

// Dependents returns, per node id, the ids of nodes that depend on it.
// Dependent lists follow graph insertion order.
func (g *Graph) Dependents() map[string][]string {
	dependents := make(map[string][]string, len(g.nodes))
	for _, id := range g.order {
		for _, dep := range g.nodes[id].DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}
	return dependents
}
