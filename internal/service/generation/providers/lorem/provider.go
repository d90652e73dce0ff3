package lorem

import (
	"context"
	"fmt"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	"vellum/internal/domain/services"
)

// Provider is a mock generation provider that streams lorem ipsum text.
// Used for development and tests without requiring real API keys.
type Provider struct {
	generator *loremgen.Lorem
}

// NewProvider creates a new lorem ipsum provider.
func NewProvider() *Provider {
	return &Provider{
		generator: loremgen.New(),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "lorem"
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-instant"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// streamDelay returns the delay between words based on the model name.
//   - lorem-slow: 2 words/second
//   - lorem-fast: 30 words/second
//   - lorem-instant: no delay (for tests)
//   - default: 10 words/second
func streamDelay(model string) time.Duration {
	if strings.Contains(model, "instant") {
		return 0
	}
	if strings.Contains(model, "slow") {
		return 500 * time.Millisecond
	}
	if strings.Contains(model, "fast") {
		return 33 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// StreamText streams generated lorem ipsum one word at a time. Speed varies
// with the model name (lorem-slow, lorem-fast, lorem-instant).
func (p *Provider) StreamText(ctx context.Context, req *services.StreamRequest) (<-chan services.Chunk, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by lorem provider", req.Model)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}

	chunks := make(chan services.Chunk, 10)

	go func() {
		defer close(chunks)

		text := p.generateWords(maxTokens)
		words := strings.Fields(text)
		delay := streamDelay(req.Model)

		for i, word := range words {
			select {
			case <-ctx.Done():
				chunks <- services.Chunk{Err: ctx.Err()}
				return
			default:
			}

			delta := word
			if i < len(words)-1 {
				delta += " "
			}
			select {
			case <-ctx.Done():
				chunks <- services.Chunk{Err: ctx.Err()}
				return
			case chunks <- services.Chunk{Text: delta}:
			}

			if delay > 0 {
				time.Sleep(delay)
			}
		}
	}()

	return chunks, nil
}

// generateWords generates lorem ipsum text with approximately targetWords
// words, inserting paragraph breaks every ~50 words.
func (p *Provider) generateWords(targetWords int) string {
	var sb strings.Builder
	wordCount := 0

	for wordCount < targetWords {
		sentence := p.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")

		wordCount += len(strings.Fields(sentence))

		if wordCount%50 == 0 {
			sb.WriteString("\n\n")
		}
	}

	return strings.TrimSpace(sb.String())
}
