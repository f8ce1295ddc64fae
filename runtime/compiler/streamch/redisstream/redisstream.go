// Package redisstream provides a streamch.Sink backed by a Redis Stream,
// for deployments where the planner and the request's transport run in
// separate processes. Grounded on the publish-envelope layering of
// features/stream/pulse/sink.go (client seam, JSON envelope, per-entry
// publish), reimplemented directly over
// github.com/redis/go-redis/v9 rather than through Pulse, since Pulse's
// stream wrapper is Goa-infrastructure-specific and the compiler core only
// needs XADD/XRANGE semantics, not Pulse's consumer-group bookkeeping.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Envelope is the JSON value stored as the Redis stream entry's "data"
// field for each token.
type Envelope struct {
	Token     string    `json:"token"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink publishes tokens to a Redis Stream keyed by RequestID. One Sink is
// constructed per in-flight request (spec ss4.6's "per-request" scoping).
type Sink struct {
	client    redis.Cmdable
	streamKey string
	maxLen    int64
}

// Options configures a Sink.
type Options struct {
	// Client is the Redis command executor. Required.
	Client redis.Cmdable
	// RequestID derives the stream key ("llmcompiler:stream:<id>"). Required.
	RequestID string
	// MaxLen approximately caps the stream length via XADD MAXLEN ~. Zero
	// disables trimming.
	MaxLen int64
}

// NewSink constructs a Redis-backed Sink for one request.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("redisstream: client is required")
	}
	if opts.RequestID == "" {
		return nil, errors.New("redisstream: request id is required")
	}
	return &Sink{
		client:    opts.Client,
		streamKey: fmt.Sprintf("llmcompiler:stream:%s", opts.RequestID),
		maxLen:    opts.MaxLen,
	}, nil
}

// Send publishes token as a new stream entry.
func (s *Sink) Send(ctx context.Context, token string) error {
	data, err := json.Marshal(Envelope{Token: token, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("redisstream: marshal envelope: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.streamKey,
		Values: map[string]any{"data": data},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

// Close marks end-of-stream by adding a terminal entry consumers recognize
// via the "eof" field. No expiry is set on the stream key; it stays in Redis
// until a caller XTRIMs or DELs it once all consumers have drained it.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamKey,
		Values: map[string]any{"eof": "1"},
	}).Err()
}

// StreamKey returns the Redis key this sink publishes to, so a transport can
// subscribe with XREAD independently of the Sink.
func (s *Sink) StreamKey() string { return s.streamKey }
