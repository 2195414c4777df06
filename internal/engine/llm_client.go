package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"questweaver/server/internal/config"
)

const (
	completeMaxRetries = 3
	completeRetryDelay = 1 * time.Second
)

// LLMClient is the text-generation capability backed by an OpenAI-compatible
// chat completion API.
type LLMClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewLLMClient creates a client from config. BaseURL may point at any
// OpenAI-compatible endpoint.
func NewLLMClient(cfg config.LLMConfig) *LLMClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &LLMClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}
}

// StreamCompletion generates text for the prompt, forwarding each delta to
// onChunk as it arrives. Returns the full accumulated text.
func (c *LLMClient) StreamCompletion(ctx context.Context, prompt string, onChunk func(chunk string) error) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), fmt.Errorf("stream receive failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onChunk != nil {
			if err := onChunk(delta); err != nil {
				return full.String(), err
			}
		}
	}

	if full.Len() == 0 {
		return "", fmt.Errorf("model returned empty completion")
	}
	return full.String(), nil
}

// Complete generates text without streaming, retrying transient failures.
// Used by background enrichment where latency does not matter.
func (c *LLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	var lastErr error
	for attempt := 0; attempt < completeMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(completeRetryDelay * time.Duration(attempt)):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("no choices returned from model")
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	return "", fmt.Errorf("completion failed after retries: %w", lastErr)
}

// isRetryableError checks if an error is worth another attempt.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "rate limit")
}
