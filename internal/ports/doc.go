// Package ports defines the interfaces between the engine and its external
// collaborators: event transport, run archival, metrics and LLM providers.
// Adapters under pkg/adapters implement them.
package ports
