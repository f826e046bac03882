package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider uses a hosted OpenAI-compatible API as the oracle.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, baseURL, model string, timeout time.Duration) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai provider requires ORACLE_API_KEY")
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Canonicalize(ctx context.Context, rawDescription string) (Result, error) {
	content, err := p.complete(ctx, canonicalizeSystemPrompt, buildCanonicalizeUserPrompt(rawDescription))
	if err != nil {
		return Result{}, err
	}
	return parseCanonicalizeResponse(content)
}

func (p *OpenAIProvider) Match(ctx context.Context, rawDescription string, sample []SampleProduct) (MatchResult, error) {
	content, err := p.complete(ctx, matchSystemPrompt, buildMatchUserPrompt(rawDescription, sample))
	if err != nil {
		return MatchResult{}, err
	}
	return parseMatchResponse(content, sample)
}

func (p *OpenAIProvider) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		if isTransportError(err) {
			return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: oracle returned no choices", ErrOracleUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == 429
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}
