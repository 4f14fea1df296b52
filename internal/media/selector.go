package media

import (
	"context"
	"fmt"
	"log/slog"

	"PlayCore/pkg/logger"
)

// Pair 是选择结果：格式与绑定到某个源的后端实例。
type Pair struct {
	Format  string
	Backend Backend
	Source  Source
}

// Select 以源优先的顺序遍历 源 × 格式 的笛卡尔积，返回第一个探测成功的组合。
// 没有任何组合可播放时返回 (nil, nil)；返回 error 仅表示上下文取消或胜出后端构造失败。
func Select(ctx context.Context, sources []Source, registry *Registry) (*Pair, error) {
	log := logger.Named("media")
	entries := registry.Entries()
	for _, src := range sources {
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ok, err := entry.Class.CanPlay(ctx, src)
			if err != nil {
				log.Debug("media probe failed",
					slog.String("format", entry.Format),
					slog.String("source", src.URL),
					slog.Any("error", err))
				continue
			}
			if !ok {
				continue
			}
			backend, err := entry.Class.New(ctx, src)
			if err != nil {
				return nil, fmt.Errorf("construct %s backend for %s: %w", entry.Format, src.URL, err)
			}
			log.Debug("media selected", slog.String("format", entry.Format), slog.String("source", src.URL))
			return &Pair{Format: entry.Format, Backend: backend, Source: src}, nil
		}
	}
	return nil, nil
}
