// Package gencode is the client for the external generative code service.
// Every call runs under a response schema: the service must return data
// conforming exactly to the declared shape, and free-form text is treated
// as invalid by the callers, never parsed heuristically.
package gencode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"ouro/internal/logging"
)

// Client is the minimal surface the evolution engine calls.
type Client interface {
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt string, schema *genai.Schema) (string, error)
}

// GeminiClient generates code via Google's Gemini API with structured
// output enforced through responseSchema.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini-backed code service client.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: model, timeout: timeout}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// CompleteWithSchema sends a prompt and enforces the given response schema.
// The returned string is the raw JSON payload; validation against the
// protocol's Go types happens in the caller.
func (c *GeminiClient) CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt string, schema *genai.Schema) (string, error) {
	if schema == nil {
		return "", fmt.Errorf("response schema is required")
	}

	// Auto-apply timeout if context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	logging.EvolveDebug("[gencode] CompleteWithSchema: model=%s system_len=%d user_len=%d",
		c.model, len(systemPrompt), len(userPrompt))

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), cfg)
	if err != nil {
		logging.EvolveError("[gencode] request failed after %v: %v", time.Since(start), err)
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}

	logging.Evolve("[gencode] completed in %v response_len=%d", time.Since(start), len(text))
	return text, nil
}
