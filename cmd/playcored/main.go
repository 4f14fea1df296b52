package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"PlayCore/internal/api"
	"PlayCore/internal/builtin"
	"PlayCore/internal/config"
	"PlayCore/internal/container"
	"PlayCore/internal/modules/pcm"
	"PlayCore/internal/observability/metrics"
	"PlayCore/internal/player"
	"PlayCore/pkg/logger"
	"PlayCore/pkg/module"
)

// pumpInterval 是从播放器拉取样本的节拍。
const pumpInterval = 20 * time.Millisecond

// main 是 PlayCore 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("playcored 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("PLAYCORE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "playcore.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("playcored")

	if addr := cfg.Metrics.Address; addr != "" {
		go func() {
			if err := metrics.StartServer(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
		log.Info("metrics server listening", slog.String("address", addr))
	}

	inst, err := builtin.NewInstance(cfg, module.GoPluginLoader{}, &container.MemoryHost{})
	if err != nil {
		return err
	}
	defer func() {
		if err := inst.Destroy(); err != nil {
			log.Warn("destroy instance failed", slog.Any("error", err))
		}
	}()

	out, err := inst.Init(ctx)
	if err != nil {
		return err
	}
	if out.State == player.StateError {
		return out.Err
	}
	log.Info("instance ready", slog.String("instance_id", inst.ID()))

	if addr := cfg.API.Address; addr != "" {
		go func() {
			if err := api.NewServer(addr, inst).Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("control api stopped", slog.Any("error", err))
			}
		}()
		log.Info("control api listening", slog.String("address", addr))
	}

	p, ok := inst.Module(pcm.Name).(*pcm.Player)
	if !ok {
		log.Info("player does not render pcm, waiting for shutdown")
		<-ctx.Done()
		return nil
	}
	if p.Paused() {
		if err := inst.Play(ctx); err != nil {
			return err
		}
	}
	pump(ctx, p)
	log.Info("playback finished", slog.Duration("position", p.Position()))
	return nil
}

// pump 以实时速率拉取样本，直到流结束或 ctx 取消。
func pump(ctx context.Context, p *pcm.Player) {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	buf := make([][2]float64, p.SampleRate().N(pumpInterval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, ok := p.Stream(buf); !ok {
				return
			}
		}
	}
}
