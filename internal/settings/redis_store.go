package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps settings in Redis so several service instances share one
// world. Each Set publishes the changed key on a channel; Watch relays those
// notifications.
type RedisStore struct {
	rdb     *redis.Client
	prefix  string
	channel string
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Channel is used for change notifications and as the key prefix.
	Channel string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStoreFromClient(rdb, opts.Channel), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, channel string) *RedisStore {
	if channel == "" {
		channel = "portraitd:settings"
	}
	return &RedisStore{rdb: rdb, prefix: channel + ":", channel: channel}
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) Get(ctx context.Context, scope, key string) (json.RawMessage, bool, error) {
	b, err := s.rdb.Get(ctx, s.prefix+storageKey(scope, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return json.RawMessage(b), true, nil
}

func (s *RedisStore) Set(ctx context.Context, scope, key string, value any) error {
	raw, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", storageKey(scope, key), err)
	}
	if err := s.rdb.Set(ctx, s.prefix+storageKey(scope, key), []byte(raw), 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.channel, storageKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Watch subscribes to change notifications until ctx is done.
func (s *RedisStore) Watch(ctx context.Context, fn func(Change)) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if c, ok := parseChange(msg.Payload); ok {
				fn(c)
			}
		}
	}
}

func parseChange(payload string) (Change, bool) {
	i := strings.Index(payload, ".")
	if i <= 0 || i == len(payload)-1 {
		return Change{}, false
	}
	return Change{Scope: payload[:i], Key: payload[i+1:]}, true
}
