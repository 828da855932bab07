// Package auditredis stores guardrail audit records in a Redis stream.
//
// Every record becomes one XADD entry with a single "record" field holding the
// indented JSON document; stream entries are append-only, so records are never
// overwritten. The returned location is "<stream>/<entry id>".
package auditredis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/skosovsky/guardrail"
)

// DefaultStream is used when Config.Stream is empty.
const DefaultStream = "guardrail:audit"

// RecordField is the stream entry field holding the JSON record.
const RecordField = "record"

// Config describes the Redis connection and target stream.
type Config struct {
	Address  string
	Password string
	DB       int
	Stream   string
}

// Sink appends audit records to a Redis stream.
type Sink struct {
	client redis.UniversalClient
	stream string
	owned  bool
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Address == "" {
		return nil, errors.New("auditredis: address cannot be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("auditredis: connect: %w", err)
	}
	s := NewWithClient(client, cfg.Stream)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. Close does not close it.
func NewWithClient(client redis.UniversalClient, stream string) *Sink {
	if stream == "" {
		stream = DefaultStream
	}
	return &Sink{client: client, stream: stream}
}

// Stream returns the stream name records are appended to.
func (s *Sink) Stream() string { return s.stream }

// Append implements guardrail.Sink. The stream is never trimmed.
func (s *Sink) Append(ctx context.Context, rec guardrail.AuditRecord) (string, error) {
	data, err := rec.MarshalIndent()
	if err != nil {
		return "", &guardrail.AuditWriteError{Path: s.stream, Err: err}
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		ID:     "*",
		Values: map[string]any{RecordField: string(data)},
	}).Result()
	if err != nil {
		return "", &guardrail.AuditWriteError{Path: s.stream, Err: err}
	}
	return s.stream + "/" + id, nil
}

// Close releases the connection when the Sink created it.
func (s *Sink) Close() error {
	if s == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

var _ guardrail.Sink = (*Sink)(nil)
