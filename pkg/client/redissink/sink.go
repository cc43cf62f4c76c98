package redissink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

const (
	DefaultStream          = "oxguard:audit:events"
	DefaultMaxStreamLength = 10000
)

// Config holds the Redis connection settings for the audit sink.
type Config struct {
	URL      string
	Password string

	// Stream is the Redis stream audit events are appended to.
	Stream string

	// MaxStreamLength caps the stream with approximate trimming.
	MaxStreamLength int64

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.MaxStreamLength <= 0 {
		c.MaxStreamLength = DefaultMaxStreamLength
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

// streamAdder is the single Redis capability the sink needs.
type streamAdder interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// Sink ships audit events to a capped Redis stream. It satisfies the audit
// trail's sink contract; callers treat delivery as best-effort.
type Sink struct {
	logger logging.Logger
	config Config
	client streamAdder
}

// NewSink connects to Redis and verifies the connection with a ping.
func NewSink(logger logging.Logger, config Config) (*Sink, error) {
	config.applyDefaults()

	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.Password != "" {
		opt.Password = config.Password
	}
	opt.PoolSize = config.PoolSize
	opt.MinIdleConns = config.MinIdleConns
	opt.DialTimeout = config.DialTimeout
	opt.ReadTimeout = config.ReadTimeout
	opt.WriteTimeout = config.WriteTimeout

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis audit sink (stream: %s)", config.Stream)
	return &Sink{logger: logger, config: config, client: client}, nil
}

// Append writes one audit event to the stream. The full event rides in a
// single JSON field; type, submitter and target are duplicated as flat
// fields so stream consumers can filter without unmarshaling.
func (s *Sink) Append(ctx context.Context, event types.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.config.Stream,
		MaxLen: s.config.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"id":        event.ID,
			"type":      string(event.Type),
			"submitter": event.SubmitterID,
			"target":    event.TargetID,
			"event":     string(payload),
		},
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to append audit event to stream: %w", err)
	}

	s.logger.Debugf("Audit event %s appended to %s as %s", event.ID, s.config.Stream, id)
	return nil
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error {
	if closer, ok := s.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
