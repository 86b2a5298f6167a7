package llm

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/floworc/floworc/internal/domain"
	"github.com/floworc/floworc/internal/ports"
)

// ExecutorOptions configures an LLM-backed node executor.
type ExecutorOptions struct {
	Model       string
	System      string
	MaxTokens   int
	Temperature float64
}

// NewExecutor builds a node executor that renders promptTemplate against the
// node's resolved input and sends it as a completion request. The template
// sees the run input as .Run and upstream outputs as .Deps, keyed by node id.
// The completion text becomes the node's output, so downstream nodes and
// compensation actions receive a plain string.
func NewExecutor(client ports.LLMClient, promptTemplate string, opts ExecutorOptions) (domain.NodeExecutor, error) {
	tmpl, err := template.New("prompt").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}

	return func(ctx context.Context, input domain.NodeInput, _ domain.ContextView) (interface{}, error) {
		var prompt bytes.Buffer
		if err := tmpl.Execute(&prompt, input); err != nil {
			return nil, fmt.Errorf("failed to render prompt: %w", err)
		}

		completion, err := client.GenerateCompletion(ctx, &ports.LLMRequest{
			Model:       opts.Model,
			System:      opts.System,
			Prompt:      prompt.String(),
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		})
		if err != nil {
			return nil, err
		}

		return completion, nil
	}, nil
}
