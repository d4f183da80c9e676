package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"readflow/internal/resilience/circuitbreaker"
)

// OpenAI implements the Completer interface using the OpenAI chat API.
// It mirrors the Claude adapter: rate limiter plus circuit breaker, retry
// policy left to the caller.
type OpenAI struct {
	client         *openai.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	limiter        *rate.Limiter
	config         Config
}

// NewOpenAI creates a new OpenAI completion client with the given API key.
func NewOpenAI(apiKey string, config Config) *OpenAI {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	slog.Info("initialized OpenAI completion client",
		slog.String("model", config.Model),
		slog.Int("max_tokens", config.MaxTokens),
		slog.Duration("call_timeout", config.CallTimeout),
		slog.Int("requests_per_minute", config.RequestsPerMinute))

	return &OpenAI{
		client:         openai.NewClient(apiKey),
		circuitBreaker: circuitbreaker.New(circuitbreaker.LLMAPIConfig()),
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
		config:         config,
	}
}

// Complete sends the prompts to the OpenAI API and returns the raw text of
// the first choice. HTTP 429 responses surface as *RateLimitError; the
// go-openai error type does not expose response headers, so the Retry-After
// hint is always zero and callers fall back to computed backoff.
func (o *OpenAI) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	return raceDeadline(ctx, o.config.CallTimeout, func(callCtx context.Context) (string, error) {
		result, err := o.circuitBreaker.Execute(func() (interface{}, error) {
			return o.doComplete(callCtx, systemPrompt, userPrompt, temperature)
		})
		if err != nil {
			return "", err
		}
		return result.(string), nil
	})
}

// doComplete performs the actual API call without the circuit breaker.
func (o *OpenAI) doComplete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (interface{}, error) {
	start := time.Now()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.config.Model,
		MaxTokens:   o.config.MaxTokens,
		Temperature: float32(temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})

	duration := time.Since(start)

	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", &RateLimitError{}
		}
		return "", fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai api returned no choices")
	}

	slog.DebugContext(ctx, "completion finished",
		slog.String("provider", "openai"),
		slog.Int("response_length", len(resp.Choices[0].Message.Content)),
		slog.Duration("duration", duration))

	return resp.Choices[0].Message.Content, nil
}
