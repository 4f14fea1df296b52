package media

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"PlayCore/internal/config"
)

// Source 是一个候选媒体源描述，构造后不可变。
type Source struct {
	URL  string
	Type string
}

// SourcesFrom 按配置顺序构造候选媒体源列表。
func SourcesFrom(cfgs []config.SourceConfig) []Source {
	out := make([]Source, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Source{URL: c.URL, Type: strings.ToLower(c.Type)})
	}
	return out
}

// Scheme 返回 URL 的 scheme，本地路径返回 "file"。
func (s Source) Scheme() string {
	if i := strings.Index(s.URL, "://"); i > 0 {
		return strings.ToLower(s.URL[:i])
	}
	return "file"
}

// Path 返回本地文件路径；非 file 源返回空串。
func (s Source) Path() string {
	switch s.Scheme() {
	case "file":
		if strings.HasPrefix(s.URL, "file://") {
			u, err := url.Parse(s.URL)
			if err != nil {
				return ""
			}
			return u.Path
		}
		return s.URL
	default:
		return ""
	}
}

// Extension 返回小写的文件扩展名。
func (s Source) Extension() string {
	p := s.URL
	if u, err := url.Parse(s.URL); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// MediaType 返回类型提示，缺省时根据扩展名推断。
func (s Source) MediaType() string {
	if s.Type != "" {
		return s.Type
	}
	typ := mime.TypeByExtension(s.Extension())
	if i := strings.Index(typ, ";"); i >= 0 {
		typ = typ[:i]
	}
	return strings.ToLower(strings.TrimSpace(typ))
}

func (s Source) String() string {
	if s.Type == "" {
		return s.URL
	}
	return s.URL + " (" + s.Type + ")"
}
