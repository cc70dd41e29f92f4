package token

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror writes each published credential to a redis key so other
// hosts can consume the token without driving a browser themselves. The
// TTL should comfortably exceed the refresh interval; a vanished key
// means the daemon stopped refreshing.
type RedisMirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ Sink = (*RedisMirror)(nil)

// NewRedisMirror connects a mirror to the given redis instance.
func NewRedisMirror(opt *redis.Options, key string, ttl time.Duration) *RedisMirror {
	return &RedisMirror{
		client: redis.NewClient(opt),
		key:    key,
		ttl:    ttl,
	}
}

// Publish stores the serialized credential under the configured key.
func (m *RedisMirror) Publish(ctx context.Context, cred Credential) error {
	return m.client.Set(ctx, m.key, cred.JSON(), m.ttl).Err()
}

// Close releases the underlying redis connection pool.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
