// Package bedrock adapts the AWS Bedrock Converse API to the compiler's
// model.Client contract. Grounded on features/model/bedrock/client.go's
// RuntimeClient seam (Converse/ConverseStream) and Options shape, narrowed
// to plain system/human text messages since the compiler's plan format
// needs no Bedrock ToolConfiguration encoding.
package bedrock

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	compilermodel "github.com/tinyagent-go/llmcompiler/runtime/compiler/model"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client used by
// the adapter; satisfied by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Options configures the adapter.
type Options struct {
	Runtime     RuntimeClient
	Model       string
	MaxTokens   int
	Temperature float32
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime RuntimeClient
	model   string
	maxTok  int32
	temp    float32
}

// New builds a Bedrock-backed model.Client.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("bedrock: model identifier is required")
	}
	maxTok := int32(opts.MaxTokens)
	if maxTok <= 0 {
		maxTok = 4096
	}
	return &Client{runtime: opts.Runtime, model: opts.Model, maxTok: maxTok, temp: opts.Temperature}, nil
}

func (c *Client) buildInput(req compilermodel.Request) (string, []brtypes.SystemContentBlock, []brtypes.Message, *brtypes.InferenceConfiguration) {
	var system []brtypes.SystemContentBlock
	var messages []brtypes.Message
	for _, m := range req.Messages {
		switch m.Role {
		case compilermodel.RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case compilermodel.RoleHuman:
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}
	maxTok := int32(req.MaxTokens)
	if maxTok <= 0 {
		maxTok = c.maxTok
	}
	infer := &brtypes.InferenceConfiguration{MaxTokens: &maxTok, StopSequences: req.Stop}
	temp := req.Temperature
	if temp == 0 {
		temp = float64(c.temp)
	}
	if temp > 0 {
		t := float32(temp)
		infer.Temperature = &t
	}
	return c.model, system, messages, infer
}

// Complete runs a non-streaming Converse call and concatenates text blocks.
func (c *Client) Complete(ctx context.Context, req compilermodel.Request) (string, error) {
	modelID, system, messages, infer := c.buildInput(req)
	out, err := c.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         &modelID,
		System:          system,
		Messages:        messages,
		InferenceConfig: infer,
	})
	if err != nil {
		return "", err
	}
	msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("bedrock: unexpected converse output shape")
	}
	var text string
	for _, block := range msgOutput.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	return text, nil
}

// Stream runs a streaming Converse call.
func (c *Client) Stream(ctx context.Context, req compilermodel.Request) (compilermodel.Streamer, error) {
	modelID, system, messages, infer := c.buildInput(req)
	out, err := c.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         &modelID,
		System:          system,
		Messages:        messages,
		InferenceConfig: infer,
	})
	if err != nil {
		return nil, err
	}
	return &streamer{events: out.GetStream()}, nil
}

type streamer struct {
	events *bedrockruntime.ConverseStreamEventStream
}

func (s *streamer) Recv(ctx context.Context) (compilermodel.Chunk, error) {
	event, ok := <-s.events.Events()
	if !ok {
		if err := s.events.Err(); err != nil {
			return compilermodel.Chunk{}, err
		}
		return compilermodel.Chunk{Done: true}, nil
	}
	switch e := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		if delta, ok := e.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok {
			return compilermodel.Chunk{TextDelta: delta.Value}, nil
		}
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		return compilermodel.Chunk{StopReason: string(e.Value.StopReason)}, nil
	}
	return compilermodel.Chunk{}, nil
}

func (s *streamer) Close() error {
	return s.events.Close()
}
