package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type redisCmdable interface {
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Publish(context.Context, string, any) *redis.IntCmd
}

type redisSubscription interface {
	Channel(...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// RedisReplica mirrors the state document to a redis key and announces every
// write on a pub/sub channel, tagged with the writer's instance id.
type RedisReplica struct {
	store      redisCmdable
	subscribe  func(ctx context.Context, channel string) (redisSubscription, error)
	raw        *redis.Client
	key        string
	channel    string
	instanceID string
	log        zerolog.Logger
}

// NewRedisReplica connects to redis and verifies connectivity.
func NewRedisReplica(ctx context.Context, cfg ReplicaConfig, log zerolog.Logger) (*RedisReplica, error) {
	if cfg.URL == "" {
		return nil, errors.New("replica redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	r := newRedisReplica(raw, cfg, log)
	r.raw = raw
	r.subscribe = func(ctx context.Context, channel string) (redisSubscription, error) {
		ps := raw.Subscribe(ctx, channel)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
		}
		return ps, nil
	}
	return r, nil
}

func newRedisReplica(store redisCmdable, cfg ReplicaConfig, log zerolog.Logger) *RedisReplica {
	key, channel := cfg.Key, cfg.Channel
	if key == "" {
		key = "subsaver:state"
	}
	if channel == "" {
		channel = key + ":changes"
	}
	return &RedisReplica{
		store:      store,
		key:        key,
		channel:    channel,
		instanceID: uuid.NewString(),
		log:        log.With().Str("component", "replica").Logger(),
	}
}

func (r *RedisReplica) ReadBlob(ctx context.Context) ([]byte, error) {
	data, err := r.store.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading replica key %s: %w", r.key, err)
	}
	return data, nil
}

func (r *RedisReplica) WriteBlob(ctx context.Context, data []byte) error {
	if err := r.store.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing replica key %s: %w", r.key, err)
	}
	if err := r.store.Publish(ctx, r.channel, r.instanceID).Err(); err != nil {
		r.log.Warn().Err(err).Msg("publishing change notification failed")
	}
	return nil
}

func (r *RedisReplica) Watch(ctx context.Context, onChange func()) error {
	if r.subscribe == nil {
		return errors.New("replica does not support watching")
	}
	sub, err := r.subscribe(ctx, r.channel)
	if err != nil {
		return err
	}
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("replica subscription closed")
			}
			if msg.Payload == r.instanceID {
				continue
			}
			r.log.Debug().Str("from", msg.Payload).Msg("replica changed")
			onChange()
		}
	}
}

// Close releases the redis connection.
func (r *RedisReplica) Close() error {
	if r.raw == nil {
		return nil
	}
	return r.raw.Close()
}
