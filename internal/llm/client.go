package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/researchdesk/backend/internal/pipeline"
)

const defaultCallTimeout = 45 * time.Second

// Client adapts the Google GenAI SDK to the pipeline's TextGenerator
// contract, classifying upstream failures into pipeline failure reasons.
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: create client: %w", err)
	}
	return &Client{client: client, model: model, timeout: defaultCallTimeout}, nil
}

// Model returns the model identifier used for generation.
func (c *Client) Model() string { return c.model }

// Generate runs one bounded LLM call. Empty or whitespace-only responses
// are malformed: the response is untrusted input and must carry text.
func (c *Client) Generate(ctx context.Context, prompt string, opts pipeline.GenOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(opts.Temperature),
		TopP:            genai.Ptr(opts.TopP),
		MaxOutputTokens: opts.MaxTokens,
		StopSequences:   opts.StopSequences,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classify(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &pipeline.GenerationError{
			Reason: pipeline.ReasonMalformed,
			Err:    errors.New("empty response from model"),
		}
	}
	return text, nil
}

// classify maps SDK and transport errors onto the pipeline taxonomy so the
// generator can decide what is worth retrying.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &pipeline.GenerationError{Reason: pipeline.ReasonTimeout, Err: err}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 && strings.Contains(strings.ToLower(apiErr.Message), "quota"):
			return &pipeline.GenerationError{Reason: pipeline.ReasonQuota, Err: err}
		case apiErr.Code == 429:
			return &pipeline.GenerationError{Reason: pipeline.ReasonRateLimited, Err: err}
		case apiErr.Code == 408 || apiErr.Code == 504:
			return &pipeline.GenerationError{Reason: pipeline.ReasonTimeout, Err: err}
		case apiErr.Code == 400 && strings.Contains(strings.ToLower(apiErr.Message), "json"):
			return &pipeline.GenerationError{Reason: pipeline.ReasonMalformed, Err: err}
		}
	}
	return &pipeline.GenerationError{Reason: pipeline.ReasonUpstream, Err: err}
}
