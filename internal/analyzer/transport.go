package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/pkg/circuitbreaker"
	"github.com/sortdesk/mailpilot/pkg/metrics"
)

// Invocation is one completed model call.
type Invocation struct {
	RawJSON json.RawMessage
	Tokens  int
	CostUSD float64
}

// Transport is the single capability the analyzer set needs from the model
// provider. Latency and failure rate are unknown; callers bound each call
// with a context deadline.
type Transport interface {
	Invoke(ctx context.Context, analyzer string, prompt string) (*Invocation, error)
}

// Pricing converts token usage into estimated USD spend.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// Cost estimates the USD cost of one call.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.PromptPer1K +
		float64(completionTokens)/1000*p.CompletionPer1K
}

// OpenAITransport invokes analyzers as chat completions, guarded by a
// circuit breaker so a flapping provider fails fast instead of holding a
// worker slot for the full timeout.
type OpenAITransport struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	pricing     Pricing
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

func NewOpenAITransport(apiKey, model string, maxTokens int, temperature float32, pricing Pricing, logger *zap.Logger) *OpenAITransport {
	return &OpenAITransport{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		pricing:     pricing,
		breaker:     circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:      logger,
	}
}

func (t *OpenAITransport) Invoke(ctx context.Context, analyzer string, prompt string) (*Invocation, error) {
	var inv *Invocation

	err := t.breaker.Execute(func() error {
		resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: t.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an email analysis service. Respond with a single JSON object and nothing else.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   t.maxTokens,
			Temperature: t.temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return fmt.Errorf("model call for %s: %w", analyzer, err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("model call for %s: empty response", analyzer)
		}

		cost := t.pricing.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		metrics.AddModelSpend(cost)

		inv = &Invocation{
			RawJSON: json.RawMessage(stripFences(resp.Choices[0].Message.Content)),
			Tokens:  resp.Usage.TotalTokens,
			CostUSD: cost,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// stripFences removes a markdown code fence some models wrap around JSON
// despite the response-format hint.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
