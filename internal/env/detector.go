package env

import (
	"context"
	"mime"
	"runtime"

	"PlayCore/internal/config"
)

// Detector 计算环境快照，每个实例生命周期只调用一次。
type Detector interface {
	Detect(ctx context.Context, cfg *config.Config) (Snapshot, error)
}

// DetectorFunc 让普通函数实现 Detector。
type DetectorFunc func(ctx context.Context, cfg *config.Config) (Snapshot, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, cfg *config.Config) (Snapshot, error) {
	return f(ctx, cfg)
}

// RuntimeDetector 根据进程运行环境给出默认能力，并叠加配置中的覆盖项。
type RuntimeDetector struct {
	// AutoplayDefault 在配置未声明 canAutoplay 时使用。
	AutoplayDefault bool
}

// Detect implements Detector.
func (d RuntimeDetector) Detect(ctx context.Context, cfg *config.Config) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	flags := map[Capability]bool{
		CapabilityPCM:        true,
		CapabilityFilesystem: runtime.GOOS != "js" && runtime.GOOS != "wasip1",
		CapabilityNetwork:    runtime.GOOS != "wasip1",
		CapabilityMimeTypes:  mime.TypeByExtension(".wav") != "" && mime.TypeByExtension(".mp3") != "",
	}
	canAutoplay := d.AutoplayDefault
	if cfg != nil {
		for name, on := range cfg.Environment.Flags {
			flags[Capability(name)] = on
		}
		if cfg.Environment.CanAutoplay != nil {
			canAutoplay = *cfg.Environment.CanAutoplay
		}
	}
	return NewSnapshot(canAutoplay, runtime.GOOS+"/"+runtime.GOARCH, flags), nil
}
