package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"PlayCore/internal/config"
	"PlayCore/internal/env"
	"PlayCore/pkg/module"
)

// RedisName 是 Redis 遥测扩展的注册名。
const RedisName = "redis-telemetry"

// RedisPublisher 通过 Redis PUBLISH 广播事件。
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher 创建 Redis 发布者。连接在首次发布时建立。
func NewRedisPublisher(cfg config.RedisConfig) (*RedisPublisher, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "playcore:lifecycle"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisPublisher{client: client, channel: channel}, nil
}

// Publish 将事件发布到频道。
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := ev.Encode()
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close 关闭 Redis 客户端。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// RedisClass 在配置了 telemetry.redis.address 时可用。
func RedisClass() module.Class {
	return module.Class{
		Info: module.Info{
			Name:        RedisName,
			Role:        module.RoleExtension,
			Description: "publishes lifecycle events on a redis channel",
			Version:     "1.0.0",
			Requires:    []env.Capability{env.CapabilityNetwork},
		},
		Supported: func(_ env.Snapshot, cfg *config.Config) bool {
			return cfg != nil && strings.TrimSpace(cfg.Telemetry.Redis.Address) != ""
		},
		New: func(_ context.Context, mc *module.Context) (module.Module, error) {
			pub, err := NewRedisPublisher(mc.Config.Telemetry.Redis)
			if err != nil {
				return nil, err
			}
			return NewSink(RedisName, mc, pub), nil
		},
	}
}
