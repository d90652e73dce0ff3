package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"vellum/internal/domain/services"
)

// Provider implements the generation Provider interface for Anthropic
// (Claude) models.
type Provider struct {
	client *anthropic.Client
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Provider{
		client: &client,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// StreamText starts a streaming message request and returns text deltas as
// they arrive from the API.
func (p *Provider) StreamText(ctx context.Context, req *services.StreamRequest) (<-chan services.Chunk, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by Anthropic provider", req.Model)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	if req.System != "" {
		apiParams.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}

	chunks := make(chan services.Chunk, 10)

	go func() {
		defer close(chunks)

		stream := p.client.Messages.NewStreaming(ctx, apiParams)

		// Accumulator catches malformed event sequences early.
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				chunks <- services.Chunk{Err: fmt.Errorf("failed to accumulate message: %w", err)}
				return
			}

			text := textDelta(event)
			if text == "" {
				continue
			}

			select {
			case <-ctx.Done():
				chunks <- services.Chunk{Err: ctx.Err()}
				return
			case chunks <- services.Chunk{Text: text}:
			}
		}

		if err := stream.Err(); err != nil {
			chunks <- services.Chunk{Err: fmt.Errorf("anthropic streaming error: %w", err)}
			return
		}
	}()

	return chunks, nil
}

// textDelta extracts the text content from a streaming event, returning ""
// for events that carry no text (message start/stop, block boundaries).
func textDelta(event anthropic.MessageStreamEventUnion) string {
	switch e := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		if delta, ok := e.Delta.AsAny().(anthropic.TextDelta); ok {
			return delta.Text
		}
	}
	return ""
}
