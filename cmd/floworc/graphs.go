package main

import (
	"fmt"
	"time"

	"github.com/floworc/floworc/internal/application/orchestrator"
	"github.com/floworc/floworc/internal/config"
	"github.com/floworc/floworc/internal/domain"
	"github.com/floworc/floworc/internal/ports"
	"github.com/floworc/floworc/pkg/adapters/llm"
)

// registerSummaryGraph registers a two-stage LLM pipeline named "summary":
// a summarize node over the submitted document, then a review node that
// checks the summary against the original. The review text is the run's
// single output.
func registerSummaryGraph(registry *orchestrator.Registry, client ports.LLMClient, cfg *config.Config) error {
	opts := llm.ExecutorOptions{
		Model:       cfg.LLM.DefaultModel,
		MaxTokens:   cfg.LLM.DefaultMaxTokens,
		Temperature: cfg.LLM.DefaultTemperature,
	}

	summarize, err := llm.NewExecutor(client,
		"Summarize the following document in a short paragraph:\n\n{{.Run.document}}",
		opts)
	if err != nil {
		return fmt.Errorf("summarize executor: %w", err)
	}

	review, err := llm.NewExecutor(client,
		"Review this summary for factual drift against the original document. "+
			"Return the corrected summary only.\n\nOriginal:\n{{.Run.document}}\n\nSummary:\n{{.Deps.summarize}}",
		opts)
	if err != nil {
		return fmt.Errorf("review executor: %w", err)
	}

	policy := domain.RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: 2 * time.Second,
		Timeout:     cfg.LLM.RequestTimeout,
	}

	g := domain.NewGraph("summary").
		AddNode(&domain.Node{
			ID:      "summarize",
			Execute: summarize,
			Policy:  policy,
		}).
		AddNode(&domain.Node{
			ID:        "review",
			DependsOn: []string{"summarize"},
			Execute:   review,
			Policy:    policy,
		})

	g.RequireInput("document", func(value interface{}) error {
		doc, ok := value.(string)
		if !ok || doc == "" {
			return fmt.Errorf("document must be a non-empty string")
		}
		return nil
	})
	g.DeclareOutput(domain.OutputSpec{
		Name:     "summary",
		FromNode: "review",
	})

	return registry.Register(g)
}
