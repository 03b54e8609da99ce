// Package ai asks an OpenAI-compatible chat completion endpoint for the
// series title hidden in a release name.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const systemPrompt = `You extract anime series titles from torrent release names.
Reply with a single JSON object and nothing else: {"title": "<series title>"}.
Drop fansub group, episode number, resolution, codec, language and source tags.
Keep the title in the language it is written in. If there is more than one
language variant, prefer the romanized or English one.
If no title can be found reply {"error": "<reason>"}.`

var (
	ErrNotConfigured = errors.New("ai: endpoint or model not configured")
	ErrEmptyTitle    = errors.New("ai: empty title")
)

// Config is read from settings on every call so edits apply immediately.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
}

type Client struct {
	client *resty.Client
}

func NewClient(timeout time.Duration, proxyURL string) *Client {
	c := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c.SetTimeout(timeout)
	if proxyURL != "" {
		c.SetProxy(proxyURL)
	}
	return &Client{client: c}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// TitleResult is the only shape accepted from the model.
type TitleResult struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

// ExtractTitle returns the model's title for raw. Any transport, provider
// or decoding problem is an error; callers treat errors as "no answer".
func (c *Client) ExtractTitle(ctx context.Context, cfg Config, raw string) (string, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Model) == "" {
		return "", ErrNotConfigured
	}

	payload := chatCompletionRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: raw},
		},
	}

	req := c.client.R().SetContext(ctx).SetBody(payload)
	if cfg.APIKey != "" {
		req.SetAuthToken(cfg.APIKey)
	}
	resp, err := req.Post(cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("ai: request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ai: status %s", resp.Status())
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(resp.Body(), &completion); err != nil {
		return "", fmt.Errorf("ai: decode completion: %w", err)
	}
	if completion.Error != nil && completion.Error.Message != "" {
		return "", fmt.Errorf("ai: provider: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("ai: no choices")
	}

	var result TitleResult
	if err := DecodeJSON(completion.Choices[0].Message.Content, &result); err != nil {
		return "", fmt.Errorf("ai: decode title: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ai: model: %s", result.Error)
	}
	title := strings.TrimSpace(result.Title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}

// DecodeJSON decodes a model reply, tolerating a surrounding code fence.
func DecodeJSON(content string, target any) error {
	trimmed := stripCodeFence(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	if err := dec.Decode(target); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON object")
	}
	return nil
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}
