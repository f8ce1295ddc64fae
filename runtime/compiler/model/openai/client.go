// Package openai adapts the OpenAI Chat Completions API to the compiler's
// model.Client contract, using github.com/openai/openai-go (the SDK the
// rest of this module's stack standardizes on, per basegraphhq-basegraph's
// relay/common/llm/openai.go adapter shape: options-based client
// construction, ChatCompletionNewParams, Chat.Completions.New/NewStreaming).
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	compilermodel "github.com/tinyagent-go/llmcompiler/runtime/compiler/model"
)

// Options configures the adapter.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client implements model.Client on top of OpenAI Chat Completions.
type Client struct {
	client openai.Client
	model  string
	maxTok int
	temp   float64
}

// New builds an OpenAI-backed model.Client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	maxTok := opts.MaxTokens
	if maxTok <= 0 {
		maxTok = 4096
	}
	return &Client{
		client: openai.NewClient(reqOpts...),
		model:  opts.Model,
		maxTok: maxTok,
		temp:   opts.Temperature,
	}, nil
}

func (c *Client) params(req compilermodel.Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case compilermodel.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case compilermodel.RoleHuman:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	maxTok := req.MaxTokens
	if maxTok <= 0 {
		maxTok = c.maxTok
	}
	params := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTok)),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	} else if c.temp > 0 {
		params.Temperature = openai.Float(c.temp)
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	return params
}

// Complete runs a non-streaming completion.
func (c *Client) Complete(ctx context.Context, req compilermodel.Request) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream runs a streaming completion.
func (c *Client) Stream(ctx context.Context, req compilermodel.Request) (compilermodel.Streamer, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(req))
	return &streamer{stream: stream}, nil
}

type streamer struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *streamer) Recv(ctx context.Context) (compilermodel.Chunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return compilermodel.Chunk{}, err
		}
		return compilermodel.Chunk{Done: true}, nil
	}
	chunk := s.stream.Current()
	if len(chunk.Choices) == 0 {
		return compilermodel.Chunk{}, nil
	}
	choice := chunk.Choices[0]
	return compilermodel.Chunk{
		TextDelta:  choice.Delta.Content,
		StopReason: string(choice.FinishReason),
	}, nil
}

func (s *streamer) Close() error {
	return s.stream.Close()
}
