// Package anthropic provides a gen.Synthesizer backed by the Anthropic
// Claude Messages API via github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/anyfn/anyfn/runtime/gen"
)

const defaultMaxTokens = 2048

type (
	// MessagesClient captures the subset of the Anthropic SDK client used by
	// the adapter. It is satisfied by *sdk.MessageService so callers can pass
	// either a real client or a mock in tests.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Options configures the adapter.
	Options struct {
		// Model is the Claude model identifier. Use the typed constants from
		// the SDK, e.g. string(sdk.ModelClaudeSonnet4_5_20250929).
		Model string
		// MaxTokens caps completion length; defaults to 2048 when zero.
		MaxTokens int
		// Temperature overrides the provider default when positive.
		Temperature float64
	}

	// Client implements gen.Synthesizer on top of Claude Messages.
	Client struct {
		msg    MessagesClient
		model  string
		maxTok int64
		temp   float64
	}
)

// New builds an Anthropic-backed synthesizer from the provided messages
// client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	maxTok := opts.MaxTokens
	if maxTok <= 0 {
		maxTok = defaultMaxTokens
	}
	return &Client{msg: msg, model: opts.Model, maxTok: int64(maxTok), temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a synthesizer using the default Anthropic HTTP
// client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Messages, opts)
}

// Synthesize requests candidate source for the symbol via Messages.New.
func (c *Client) Synthesize(ctx context.Context, req gen.Request, entries []gen.ContextEntry) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTok,
		System:    []sdk.TextBlockParam{{Text: gen.SystemPrompt(req)}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(gen.UserPrompt(req, entries))),
		},
	}
	if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("anthropic messages.new: empty response")
	}
	return gen.CleanFences(b.String()), nil
}
