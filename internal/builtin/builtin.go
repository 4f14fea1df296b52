// Package builtin assembles the registries a default instance resolves from.
package builtin

import (
	"fmt"
	"log/slog"

	"PlayCore/internal/config"
	"PlayCore/internal/container"
	"PlayCore/internal/media"
	"PlayCore/internal/media/audio"
	"PlayCore/internal/modules/pcm"
	"PlayCore/internal/modules/transport"
	"PlayCore/internal/observability/alerting"
	"PlayCore/internal/player"
	"PlayCore/internal/telemetry"
	"PlayCore/pkg/logger"
	"PlayCore/pkg/module"
)

// Classes 返回内置模块，顺序即解析顺序。
func Classes() []module.Class {
	return []module.Class{
		transport.Class(),
		pcm.Class(),
		telemetry.JournalClass(),
		telemetry.RedisClass(),
		telemetry.RabbitMQClass(),
		telemetry.MySQLClass(),
	}
}

// Modules 构造模块注册表：内置模块在前，配置中启用的插件按声明顺序追加在后。
func Modules(cfg *config.Config, loader module.Loader) (*module.Registry, error) {
	reg, err := module.NewRegistry(Classes()...)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return reg, nil
	}
	var paths []string
	for _, p := range cfg.Plugins {
		if p.Enabled {
			paths = append(paths, p.Path)
		}
	}
	if len(paths) == 0 {
		return reg, nil
	}
	if err := module.LoadInto(reg, loader, paths...); err != nil {
		return nil, fmt.Errorf("load module plugins: %w", err)
	}
	logger.Named("builtin").Info("module plugins loaded", slog.Int("count", len(paths)))
	return reg, nil
}

// Media 返回内置媒体注册表。
func Media() *media.Registry {
	return audio.Registry()
}

// Options 组装默认实例选项。host 可为空。
func Options(cfg *config.Config, loader module.Loader, host container.Host) (player.Options, error) {
	modules, err := Modules(cfg, loader)
	if err != nil {
		return player.Options{}, err
	}
	return player.Options{
		Modules: modules,
		Media:   Media(),
		Host:    host,
		Alerts:  alerting.NewFanout(&alerting.LogNotifier{Logger: logger.Named("alerts")}),
	}, nil
}

// NewInstance 使用内置注册表创建实例。
func NewInstance(cfg *config.Config, loader module.Loader, host container.Host) (*player.Instance, error) {
	opts, err := Options(cfg, loader, host)
	if err != nil {
		return nil, err
	}
	return player.New(cfg, opts)
}
