// Package openai provides a gen.Synthesizer backed by the OpenAI Chat
// Completions API. It renders the request and context into the shared prompt
// surface, invokes the model via github.com/openai/openai-go, and strips
// Markdown fences from the returned candidate source.
package openai

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/anyfn/anyfn/runtime/gen"
)

type (
	// ChatClient captures the subset of the OpenAI SDK used by the adapter.
	// It is satisfied by *sdk.ChatCompletionService so callers can pass
	// either a real client or a mock in tests.
	ChatClient interface {
		New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	}

	// Options configures the adapter.
	Options struct {
		// Model is the chat model identifier, e.g. "gpt-4.1-nano".
		Model string
		// Temperature overrides the provider default when positive.
		Temperature float64
	}

	// Client implements gen.Synthesizer via Chat Completions.
	Client struct {
		chat  ChatClient
		model string
		temp  float64
	}
)

// New builds an OpenAI-backed synthesizer from the provided chat client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai chat client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	return &Client{chat: chat, model: opts.Model, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a synthesizer using the default OpenAI HTTP
// client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Chat.Completions, opts)
}

// Synthesize requests candidate source for the symbol. Provider errors are
// returned raw; the engine wraps them into its synthesis error.
func (c *Client) Synthesize(ctx context.Context, req gen.Request, entries []gen.ContextEntry) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(c.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(gen.SystemPrompt(req)),
			sdk.UserMessage(gen.UserPrompt(req, entries)),
		},
	}
	if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion: empty response")
	}
	return gen.CleanFences(resp.Choices[0].Message.Content), nil
}
