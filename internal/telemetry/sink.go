package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"PlayCore/internal/events"
	"PlayCore/pkg/module"
)

const (
	defaultQueueSize      = 64
	defaultPublishTimeout = 3 * time.Second
)

// Sink 是把生命周期事件转发给 Publisher 的扩展模块。
type Sink struct {
	name    string
	owner   module.Owner
	pub     Publisher
	log     *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan Event
	subs   map[string]events.ListenerID
	done   chan struct{}
	once   sync.Once
}

// NewSink 订阅所属实例的生命周期事件并启动后台发布协程。
func NewSink(name string, mc *module.Context, pub Publisher) *Sink {
	s := &Sink{
		name:    name,
		pub:     pub,
		log:     slog.Default(),
		timeout: defaultPublishTimeout,
		queue:   make(chan Event, defaultQueueSize),
		subs:    make(map[string]events.ListenerID),
		done:    make(chan struct{}),
	}
	if mc != nil {
		s.owner = mc.Owner
		if mc.Logger != nil {
			s.log = mc.Logger
		}
	}
	if s.owner != nil {
		for _, name := range []string{events.Ready, events.Error, events.Destroy} {
			ev := name
			s.subs[ev] = s.owner.On(ev, func(payload any) { s.enqueue(NewEvent(s.owner, ev, payload)) })
		}
	}
	go s.run()
	return s
}

// Name implements module.Module.
func (s *Sink) Name() string { return s.name }

// Boot implements module.Module.
func (s *Sink) Boot(context.Context) error { return nil }

// Load implements module.Module.
func (s *Sink) Load(context.Context) error { return nil }

// Unload 取消订阅，等待队列中的事件发布完毕后关闭 Publisher。可重复调用。
func (s *Sink) Unload() {
	s.once.Do(func() {
		if s.owner != nil {
			for ev, id := range s.subs {
				s.owner.RemoveListener(ev, id)
			}
		}
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
		if err := s.pub.Close(); err != nil {
			s.log.Warn("close telemetry publisher failed", slog.Any("error", err))
		}
	})
}

func (s *Sink) enqueue(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.log.Warn("telemetry queue full, dropping event", slog.String("event", ev.Name))
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.pub.Publish(ctx, ev)
		cancel()
		if err != nil {
			s.log.Warn("publish telemetry event failed",
				slog.String("event", ev.Name),
				slog.String("instance_id", ev.InstanceID),
				slog.Any("error", err))
		}
	}
}
