package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client is an abstraction over oracle providers.
type Client interface {
	// GenerateJSON sends a prompt and returns the response with any markdown
	// code fences stripped.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	// Close releases any resources held by the client
	Close() error
}

// GeminiClient implements Client for Google Gemini.
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, config: config}, nil
}

// GenerateJSON sends a prompt and returns the cleaned response text, retrying
// transient failures up to the configured maximum.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.config.Model)
	model.SetTemperature(0.1) // Low temperature for consistent output
	model.SetMaxOutputTokens(c.config.MaxOutputTokens)
	model.ResponseMIMEType = "application/json"

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = fmt.Errorf("failed to generate content: %w", err)
			if !isRetryable(err.Error()) {
				return "", lastErr
			}
			continue
		}

		text, err := extractTextFromResponse(resp)
		if err != nil {
			lastErr = err
			if !isRetryable(err.Error()) {
				return "", lastErr
			}
			continue
		}
		return CleanJSONBlock(text), nil
	}
	return "", fmt.Errorf("oracle request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// blockedMarkers identify responses the model refused to produce. Retrying
// those just burns quota.
var blockedMarkers = []string{
	"safety", "blocked", "blocklist", "prohibited",
	"sensitive_information", "recitation",
}

// nonRetryableMarkers identify errors no retry can fix.
var nonRetryableMarkers = []string{
	"api key", "permission", "invalid argument", "unauthenticated",
}

func isRetryable(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		if candidate.FinishReason != genai.FinishReasonStop {
			return "", fmt.Errorf("response blocked: %s", candidate.FinishReason)
		}
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}
