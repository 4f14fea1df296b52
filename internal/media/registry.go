package media

import (
	"context"
	"errors"
	"fmt"
)

// Backend 是绑定到某个 Source 的媒体后端实例。
type Backend interface {
	Name() string
	Source() Source
	// Unload 释放后端持有的资源，可重复调用。
	Unload()
}

// Class 描述一种媒体后端：探测函数与构造函数。
type Class struct {
	Name string
	// CanPlay 判断该后端能否以当前格式播放 src，不能有可观察的副作用。
	CanPlay func(ctx context.Context, src Source) (bool, error)
	New     func(ctx context.Context, src Source) (Backend, error)
}

// Entry 是注册表中的一项 (格式, 后端)。
type Entry struct {
	Format string
	Class  Class
}

// Registry 按注册顺序保存格式与后端。
type Registry struct {
	entries []Entry
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{}
}

// Register 追加一个格式条目。
func (r *Registry) Register(format string, class Class) error {
	if format == "" {
		return errors.New("media format cannot be empty")
	}
	if class.CanPlay == nil || class.New == nil {
		return fmt.Errorf("media format %s: probe and constructor are required", format)
	}
	for _, e := range r.entries {
		if e.Format == format {
			return fmt.Errorf("media format %s already registered", format)
		}
	}
	if class.Name == "" {
		class.Name = format
	}
	r.entries = append(r.entries, Entry{Format: format, Class: class})
	return nil
}

// MustRegister 与 Register 相同，但出错时 panic，用于内置格式。
func (r *Registry) MustRegister(format string, class Class) *Registry {
	if err := r.Register(format, class); err != nil {
		panic(err)
	}
	return r
}

// Entries 返回注册项的副本。
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	return append([]Entry(nil), r.entries...)
}

// Formats 返回已注册格式名。
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Format)
	}
	return out
}
