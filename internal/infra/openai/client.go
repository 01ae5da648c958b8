// Package openai wraps an OpenAI-compatible chat completion endpoint.
// Moonshot is the default provider.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.moonshot.cn/v1"
	DefaultModel   = "moonshot-v1-8k"
)

// Client is a chat completion client
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewClient creates a new client. Empty baseURL and model fall back to the Moonshot defaults.
func NewClient(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client:    openai.NewClientWithConfig(config),
		model:     model,
		maxTokens: 300,
	}
}

// Chat sends one system and one user message and returns the reply text
func (c *Client) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
		Temperature: 0.3,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
