package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"PlayCore/internal/config"
	"PlayCore/internal/env"
	"PlayCore/pkg/module"
)

// RabbitMQName 是 RabbitMQ 遥测扩展的注册名。
const RabbitMQName = "rabbitmq-telemetry"

// RabbitMQPublisher 把事件发布到 topic 交换机，路由键为 <routingKey>.<event>。
type RabbitMQPublisher struct {
	cfg config.RabbitMQConfig

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitMQPublisher 创建发布者。连接在首次发布时建立，断开后自动重连。
func NewRabbitMQPublisher(cfg config.RabbitMQConfig) (*RabbitMQPublisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("RabbitMQ URL cannot be empty")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "playcore.lifecycle"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "instance"
	}
	return &RabbitMQPublisher{cfg: cfg}, nil
}

// RoutingKey 返回事件对应的路由键。
func (p *RabbitMQPublisher) RoutingKey(event string) string {
	return p.cfg.RoutingKey + "." + event
}

func (p *RabbitMQPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open RabbitMQ channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.cfg.Exchange, "topic", p.cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare RabbitMQ exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// Publish 发布一条事件。
func (p *RabbitMQPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := ev.Encode()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, p.cfg.Exchange, p.RoutingKey(ev.Name), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   ev.ID,
		Timestamp:   ev.OccurredAt,
		Body:        body,
	})
}

// Close 关闭通道与连接。
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *RabbitMQPublisher) closeLocked() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}

// RabbitMQClass 在配置了 telemetry.rabbitmq.url 时可用。
func RabbitMQClass() module.Class {
	return module.Class{
		Info: module.Info{
			Name:        RabbitMQName,
			Role:        module.RoleExtension,
			Description: "publishes lifecycle events to a RabbitMQ topic exchange",
			Version:     "1.0.0",
			Requires:    []env.Capability{env.CapabilityNetwork},
		},
		Supported: func(_ env.Snapshot, cfg *config.Config) bool {
			return cfg != nil && strings.TrimSpace(cfg.Telemetry.RabbitMQ.URL) != ""
		},
		New: func(_ context.Context, mc *module.Context) (module.Module, error) {
			pub, err := NewRabbitMQPublisher(mc.Config.Telemetry.RabbitMQ)
			if err != nil {
				return nil, err
			}
			return NewSink(RabbitMQName, mc, pub), nil
		},
	}
}
