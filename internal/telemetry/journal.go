package telemetry

import (
	"context"
	"log/slog"

	"PlayCore/pkg/logger"
	"PlayCore/pkg/module"
)

// JournalName 是生命周期日志扩展的注册名。
const JournalName = "journal"

type journalPublisher struct {
	log *slog.Logger
}

func (p journalPublisher) Publish(ctx context.Context, ev Event) error {
	attrs := []slog.Attr{
		slog.String("id", ev.ID),
		slog.String("instance_id", ev.InstanceID),
		slog.String("format", ev.Format),
		slog.String("source", ev.Source),
	}
	level := slog.LevelInfo
	if ev.Error != "" {
		level = slog.LevelError
		attrs = append(attrs, slog.String("error_code", ev.ErrorCode), slog.String("error", ev.Error))
	}
	p.log.LogAttrs(ctx, level, "lifecycle "+ev.Name, attrs...)
	return nil
}

func (journalPublisher) Close() error { return nil }

// JournalClass 返回始终可用的日志扩展，它把事件写入 logger.Journal()。
func JournalClass() module.Class {
	return module.Class{
		Info: module.Info{
			Name:        JournalName,
			Role:        module.RoleExtension,
			Description: "writes lifecycle events to the journal logger",
			Version:     "1.0.0",
		},
		New: func(_ context.Context, mc *module.Context) (module.Module, error) {
			return NewSink(JournalName, mc, journalPublisher{log: logger.Journal()}), nil
		},
	}
}
