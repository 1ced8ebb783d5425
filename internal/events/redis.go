package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL is how long a session key lives without a refresh
const DefaultSessionTTL = 300 * time.Second

// RedisSink keeps a session registry in Redis:
//
//	lemuria:sess:<serial>     "<session id>|<remote addr>" with a TTL
//	lemuria:streams:<serial>  hash of stream index -> "1"/"0"
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
	owned  bool
}

// DialRedis connects to addr, which is either a redis:// URL or host:port,
// and verifies the connection with PING
func DialRedis(ctx context.Context, addr string, ttl time.Duration) (*RedisSink, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		var err error
		opts, err = redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
	} else {
		opts = &redis.Options{Addr: addr, DB: 0}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	s := NewRedisSink(client, ttl)
	s.owned = true
	return s, nil
}

// NewRedisSink uses an existing client
func NewRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSink{client: client, ttl: ttl}
}

// Name returns "redis"
func (s *RedisSink) Name() string { return "redis" }

// Handle updates the registry for e
func (s *RedisSink) Handle(ctx context.Context, e Event) error {
	sessKey := SessionKey(e.Serial)
	streamsKey := StreamsKey(e.Serial)

	switch e.Type {
	case ConnectionAccepted:
		value := fmt.Sprintf("%s|%s", e.SessionID, e.RemoteAddr)
		if err := s.client.Set(ctx, sessKey, value, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to register session: %w", err)
		}

	case ConnectionClosed:
		if err := s.client.Del(ctx, sessKey, streamsKey).Err(); err != nil {
			return fmt.Errorf("failed to remove session: %w", err)
		}

	case StreamEnabled, StreamDisabled:
		if e.Stream == nil {
			return nil
		}
		flag := "0"
		if e.Type == StreamEnabled {
			flag = "1"
		}
		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, streamsKey, strconv.Itoa(*e.Stream), flag)
		pipe.Expire(ctx, streamsKey, s.ttl)
		pipe.Expire(ctx, sessKey, s.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to update stream state: %w", err)
		}
	}

	return nil
}

// Close closes the client if the sink opened it
func (s *RedisSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// SessionKey returns the registry key for a device's active session
func SessionKey(serial string) string {
	return "lemuria:sess:" + serial
}

// StreamsKey returns the registry key for a device's stream flags
func StreamsKey(serial string) string {
	return "lemuria:streams:" + serial
}
