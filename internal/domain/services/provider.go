package services

import (
	"context"
)

// StreamRequest is a single-prompt generation request handed to a provider.
type StreamRequest struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Chunk is one piece of streamed provider output. A chunk with a non-nil Err
// terminates the stream; the channel is closed after the terminal chunk.
type Chunk struct {
	Text string
	Err  error
}

// Provider is a streaming text generation backend. Implementations route by
// model prefix ("claude-" for Anthropic, "lorem-" for the mock provider).
type Provider interface {
	// Name returns the provider name.
	Name() string

	// SupportsModel reports whether this provider can serve the given model.
	SupportsModel(model string) bool

	// StreamText starts a generation and returns a channel of output chunks.
	// Cancelling ctx stops the stream; the goroutine behind the channel
	// always closes it.
	StreamText(ctx context.Context, req *StreamRequest) (<-chan Chunk, error)
}
