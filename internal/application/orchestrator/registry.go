package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/floworc/floworc/internal/domain"
	"go.uber.org/zap"
)

// Registry holds named, validated graphs. Graphs are registered once at
// startup and never mutated afterwards; re-registration under an existing
// name is rejected.
type Registry struct {
	validator *Validator
	logger    *zap.Logger

	mu     sync.RWMutex
	graphs map[string]*domain.Graph
}

// NewRegistry creates an empty graph registry
func NewRegistry(validator *Validator, logger *zap.Logger) *Registry {
	return &Registry{
		validator: validator,
		logger:    logger,
		graphs:    make(map[string]*domain.Graph),
	}
}

// Register validates the graph and stores it under its name. There is no
// partial registration: an invalid graph leaves the registry untouched.
func (r *Registry) Register(g *domain.Graph) error {
	if err := r.validator.Validate(g); err != nil {
		r.logger.Error("graph validation failed",
			zap.String("graph", graphName(g)),
			zap.Error(err))
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.graphs[g.Name]; exists {
		return &domain.GraphInvalidError{
			Graph:  g.Name,
			Reason: "a graph with this name is already registered",
		}
	}
	r.graphs[g.Name] = g

	r.logger.Info("graph registered",
		zap.String("graph", g.Name),
		zap.Int("nodes", g.Len()))

	return nil
}

// Resolve returns the graph registered under name.
func (r *Registry) Resolve(name string) (*domain.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.graphs[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrGraphNotFound)
	}
	return g, nil
}

// Names returns all registered graph names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.graphs))
	for name := range r.graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func graphName(g *domain.Graph) string {
	if g == nil {
		return ""
	}
	return g.Name
}
