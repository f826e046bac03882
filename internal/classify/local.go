package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LocalProvider talks to an OpenAI-compatible chat completions endpoint,
// typically a model server running on the same host.
type LocalProvider struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

func NewLocalProvider(endpoint, model string, timeout time.Duration) *LocalProvider {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &LocalProvider{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *LocalProvider) Name() string { return "local" }

type localChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type localChatRequest struct {
	Model       string             `json:"model,omitempty"`
	Messages    []localChatMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
}

type localChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *LocalProvider) Canonicalize(ctx context.Context, rawDescription string) (Result, error) {
	content, err := p.complete(ctx, canonicalizeSystemPrompt, buildCanonicalizeUserPrompt(rawDescription))
	if err != nil {
		return Result{}, err
	}
	return parseCanonicalizeResponse(content)
}

func (p *LocalProvider) Match(ctx context.Context, rawDescription string, sample []SampleProduct) (MatchResult, error) {
	content, err := p.complete(ctx, matchSystemPrompt, buildMatchUserPrompt(rawDescription, sample))
	if err != nil {
		return MatchResult{}, err
	}
	return parseMatchResponse(content, sample)
}

func (p *LocalProvider) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := localChatRequest{
		Model: p.model,
		Messages: []localChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
		Stream:      false,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := p.endpoint + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrOracleUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", ErrOracleUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var chatResp localChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("%w: decode chat response: %v", ErrOracleUnavailable, err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: oracle error: %s", ErrOracleUnavailable, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: oracle returned no choices", ErrOracleUnavailable)
	}
	return chatResp.Choices[0].Message.Content, nil
}

func truncateBody(body []byte) string {
	const max = 300
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
