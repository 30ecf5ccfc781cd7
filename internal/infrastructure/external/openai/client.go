package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-validator/internal/infrastructure/metrics"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultModel is the chat model used for extraction and validation
const DefaultModel = openai.GPT4oMini

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("LLM circuit breaker is open")

// Config holds the connection settings for the chat completion API
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	// Timeout bounds a single completion call; zero means no extra bound
	Timeout time.Duration
	// RequestsPerSecond throttles calls client side; zero disables throttling
	RequestsPerSecond float64
	Burst             int
	Breaker           BreakerConfig
}

// Client implements port.LLMClient using OpenAI chat completions in
// JSON-object mode. Calls are never retried.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
	breaker     *breaker
	logger      *zap.Logger
}

// NewClient creates a new OpenAI client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	c := &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		limiter:     limiter,
		logger:      logger,
	}
	c.breaker = newBreaker(cfg.Breaker, func(name string, from, to gobreaker.State) {
		logger.Warn("LLM circuit breaker state changed",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	})
	return c
}

// Model returns the configured model identifier
func (c *Client) Model() string {
	return c.model
}

// Complete sends one system and one user message and returns the content of
// the first choice. An empty string is returned when no choice came back.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("LLM rate limiter: %w", err)
		}
	}

	start := time.Now()
	content, err := c.breaker.execute(ctx, func() (string, error) {
		return c.complete(ctx, systemPrompt, userPrompt)
	})
	elapsed := time.Since(start)
	metrics.ObserveLLMRequest(elapsed, err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		c.logger.Error("OpenAI API call failed",
			zap.String("model", c.model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", err
	}

	c.logger.Debug("OpenAI API call completed",
		zap.String("model", c.model),
		zap.Duration("elapsed", elapsed),
		zap.Int("content_length", len(content)))

	return content, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
