// Package openai generates categorizations through any OpenAI compatible
// chat completion endpoint.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultModel = openai.GPT4oMini

type Client struct {
	client *openai.Client
	model  string
}

// NewClient builds a client. An empty baseURL uses the public API.
func NewClient(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{client: openai.NewClientWithConfig(cfg), model: model}
}

// Generate sends prompt as a single user message and asks for a JSON object.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You sort trending headlines into topics and answer with JSON only.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxCompletionTokens: 2000,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
