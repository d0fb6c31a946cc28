// Package llm defines the provider-neutral chat interface used by the LLM
// runtime, including tool calls. Provider adapters live in subpackages.
package llm
