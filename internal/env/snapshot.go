package env

import (
	"sort"
	"time"
)

// Capability 是环境能力标志的名称。
type Capability string

const (
	// CapabilityPCM 表示宿主可以消费 PCM 样本流。
	CapabilityPCM        Capability = "pcm"
	CapabilityFilesystem Capability = "filesystem"
	CapabilityNetwork    Capability = "network"
	// CapabilityMimeTypes 表示音频扩展名到 MIME 的映射可用，由 polyfill 补齐。
	CapabilityMimeTypes Capability = "mime-types"
)

// Snapshot 是一次性计算出的环境能力快照，构造后不可变。
type Snapshot struct {
	canAutoplay bool
	platform    string
	flags       map[Capability]bool
	detectedAt  time.Time
}

// NewSnapshot 复制传入的标志集合构造快照。
func NewSnapshot(canAutoplay bool, platform string, flags map[Capability]bool) Snapshot {
	dup := make(map[Capability]bool, len(flags))
	for k, v := range flags {
		dup[k] = v
	}
	return Snapshot{canAutoplay: canAutoplay, platform: platform, flags: dup, detectedAt: time.Now()}
}

// CanAutoplay 报告宿主是否允许自动播放。
func (s Snapshot) CanAutoplay() bool { return s.canAutoplay }

// Platform 返回探测到的平台名称。
func (s Snapshot) Platform() string { return s.platform }

// DetectedAt 返回快照生成时间。
func (s Snapshot) DetectedAt() time.Time { return s.detectedAt }

// Has 判断某个能力是否可用。
func (s Snapshot) Has(c Capability) bool { return s.flags[c] }

// HasAll 判断所有能力是否都可用。
func (s Snapshot) HasAll(caps []Capability) bool {
	for _, c := range caps {
		if !s.flags[c] {
			return false
		}
	}
	return true
}

// Capabilities 返回已启用能力的有序列表。
func (s Snapshot) Capabilities() []Capability {
	out := make([]Capability, 0, len(s.flags))
	for c, on := range s.flags {
		if on {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
