package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"readflow/internal/resilience/circuitbreaker"
)

// Claude implements the Completer interface using Anthropic's Claude API.
// It includes a client-side rate limiter and a circuit breaker; retry policy
// is left to the caller so that classification and normalization can apply
// their own rules.
type Claude struct {
	client         anthropic.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	limiter        *rate.Limiter
	config         Config
}

// NewClaude creates a new Claude completion client with the given API key.
func NewClaude(apiKey string, config Config) *Claude {
	if config.Model == "" {
		config.Model = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}

	slog.Info("initialized Claude completion client",
		slog.String("model", config.Model),
		slog.Int("max_tokens", config.MaxTokens),
		slog.Duration("call_timeout", config.CallTimeout),
		slog.Int("requests_per_minute", config.RequestsPerMinute))

	return &Claude{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		circuitBreaker: circuitbreaker.New(circuitbreaker.LLMAPIConfig()),
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
		config:         config,
	}
}

// Complete sends the prompts to the Claude API and returns the raw text
// response. HTTP 429 responses surface as *RateLimitError with the server's
// Retry-After hint when one was provided.
func (c *Claude) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	return raceDeadline(ctx, c.config.CallTimeout, func(callCtx context.Context) (string, error) {
		result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doComplete(callCtx, systemPrompt, userPrompt, temperature)
		})
		if err != nil {
			return "", err
		}
		return result.(string), nil
	})
}

// doComplete performs the actual API call without the circuit breaker.
func (c *Claude) doComplete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (interface{}, error) {
	start := time.Now()

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   int64(c.config.MaxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(userPrompt),
			),
		},
	})

	duration := time.Since(start)

	if err != nil {
		if rle, ok := mapAnthropicRateLimit(err); ok {
			return "", rle
		}
		return "", fmt.Errorf("claude api error: %w", err)
	}

	if len(message.Content) == 0 {
		return "", fmt.Errorf("claude api returned empty response")
	}

	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return "", fmt.Errorf("claude api returned unexpected response type")
	}

	slog.DebugContext(ctx, "completion finished",
		slog.String("provider", "claude"),
		slog.Int("response_length", len(textBlock.Text)),
		slog.Duration("duration", duration))

	return textBlock.Text, nil
}

// mapAnthropicRateLimit converts an SDK 429 error into *RateLimitError,
// preserving the Retry-After header when present.
func mapAnthropicRateLimit(err error) (*RateLimitError, bool) {
	var apierr *anthropic.Error
	if !errors.As(err, &apierr) || apierr.StatusCode != http.StatusTooManyRequests {
		return nil, false
	}
	rle := &RateLimitError{}
	if apierr.Response != nil {
		rle.RetryAfter = parseRetryAfter(apierr.Response.Header.Get("Retry-After"))
	}
	return rle, true
}

// parseRetryAfter interprets a Retry-After header value, either delta-seconds
// or an HTTP date. Returns zero for missing or unparseable values.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
