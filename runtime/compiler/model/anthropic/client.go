// Package anthropic adapts the Anthropic Claude Messages API to the
// compiler's model.Client contract. Grounded on
// runtime/agent/(features)/model/anthropic/client.go's MessagesClient seam
// and constructor shape, but narrowed: the compiler's planner never needs
// native tool_use blocks (the whole action grammar lives in the system
// prompt text), so this adapter only encodes plain system/human messages and
// decodes plain text deltas.
package anthropic

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/model"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter, so tests can substitute a stub.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures the adapter's default model and sampling parameters.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client implements model.Client on top of Anthropic Claude Messages.
type Client struct {
	msg    MessagesClient
	model  string
	maxTok int
	temp   float64
}

// New builds an Anthropic-backed model.Client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	maxTok := opts.MaxTokens
	if maxTok <= 0 {
		maxTok = 4096
	}
	return &Client{msg: msg, model: opts.Model, maxTok: maxTok, temp: opts.Temperature}, nil
}

func (c *Client) prepareParams(req model.Request) sdk.MessageNewParams {
	var system string
	var messages []sdk.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			system = m.Content
		case model.RoleHuman:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	maxTok := req.MaxTokens
	if maxTok <= 0 {
		maxTok = c.maxTok
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(maxTok),
		Messages:  messages,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	} else if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	for _, s := range req.Stop {
		params.StopSequences = append(params.StopSequences, s)
	}
	return params
}

// Complete runs a non-streaming completion and concatenates all text blocks.
func (c *Client) Complete(ctx context.Context, req model.Request) (string, error) {
	resp, err := c.msg.New(ctx, c.prepareParams(req))
	if err != nil {
		return "", err
	}
	var out string
	for _, block := range resp.Content {
		if text := block.AsAny(); text != nil {
			if tb, ok := text.(sdk.TextBlock); ok {
				out += tb.Text
			}
		}
	}
	return out, nil
}

// Stream runs a streaming completion.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	stream := c.msg.NewStreaming(ctx, c.prepareParams(req))
	return &streamer{stream: stream}, nil
}

type streamer struct {
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	acc    sdk.Message
}

func (s *streamer) Recv(ctx context.Context) (model.Chunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{Done: true}, nil
	}
	event := s.stream.Current()
	if err := s.acc.Accumulate(event); err != nil {
		return model.Chunk{}, err
	}
	delta := event.AsAny()
	if d, ok := delta.(sdk.ContentBlockDeltaEvent); ok {
		if text, ok := d.Delta.AsAny().(sdk.TextDelta); ok {
			return model.Chunk{TextDelta: text.Text}, nil
		}
	}
	if stop, ok := delta.(sdk.MessageDeltaEvent); ok {
		return model.Chunk{StopReason: string(stop.Delta.StopReason)}, nil
	}
	return model.Chunk{}, nil
}

func (s *streamer) Close() error {
	return s.stream.Close()
}
