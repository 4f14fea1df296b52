package env

import (
	"context"
	"fmt"
	"mime"
)

// Polyfiller 在探测环境之前修正宿主环境。
type Polyfiller interface {
	Apply(ctx context.Context) error
}

// PolyfillFunc 让普通函数实现 Polyfiller。
type PolyfillFunc func(ctx context.Context) error

// Apply implements Polyfiller.
func (f PolyfillFunc) Apply(ctx context.Context) error { return f(ctx) }

// Chain 依次执行多个 polyfill，遇到错误立即返回。
type Chain []Polyfiller

// Apply implements Polyfiller.
func (c Chain) Apply(ctx context.Context) error {
	for _, p := range c {
		if p == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Apply(ctx); err != nil {
			return err
		}
	}
	return nil
}

var audioMimeTypes = map[string]string{
	".wav":  "audio/wav",
	".wave": "audio/wav",
	".mp3":  "audio/mpeg",
}

// MimePolyfill 为精简系统补齐音频扩展名的 MIME 映射，媒体选择依赖这些映射。
func MimePolyfill() Polyfiller {
	return PolyfillFunc(func(context.Context) error {
		for ext, typ := range audioMimeTypes {
			if mime.TypeByExtension(ext) != "" {
				continue
			}
			if err := mime.AddExtensionType(ext, typ); err != nil {
				return fmt.Errorf("register mime type %s: %w", ext, err)
			}
		}
		return nil
	})
}
