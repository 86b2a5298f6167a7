// Package llm provides LLM client implementations and an LLM-backed node
// executor.
//
// The factory creates LLM clients based on provider configuration.
// Currently supports:
//   - Anthropic Claude
package llm
