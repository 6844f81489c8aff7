// Package ai declares the language-model and embedding boundaries the matching core depends on.
package ai

import "context"

// Generator sends a single-turn prompt to a language model and returns its text answer.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Embedder turns text into a raw vector. Dimension pinning and version tagging
// happen in vector.TaggedEmbedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

const (
	// ProviderGemini selects google.golang.org/genai.
	ProviderGemini = "gemini"
	// ProviderOpenAI selects an OpenAI-compatible endpoint (OpenAI, Groq, Ollama...).
	ProviderOpenAI = "openai"
	// ProviderSidecar selects a self-hosted embedding service.
	ProviderSidecar = "sidecar"
)
