package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"PlayCore/pkg/logger"
)

// Config 描述了一个播放实例在启动阶段需要的全部配置，加载后视为只读。
type Config struct {
	Sources         []SourceConfig            `yaml:"sources"`
	Autoplay        bool                      `yaml:"autoplay"`
	IgnorePolyfills bool                      `yaml:"ignorePolyfills"`
	Modules         map[string]map[string]any `yaml:"modules"`
	Policy          ModulePolicy              `yaml:"policy"`
	Plugins         []PluginConfig            `yaml:"plugins"`
	Environment     EnvironmentConfig         `yaml:"environment"`
	Logging         logger.Config             `yaml:"logging"`
	Telemetry       TelemetryConfig           `yaml:"telemetry"`
	Metrics         MetricsConfig             `yaml:"metrics"`
	API             APIConfig                 `yaml:"api"`
}

// SourceConfig 是一个候选媒体源，列表顺序即优先级。
type SourceConfig struct {
	URL  string `yaml:"url"`
	Type string `yaml:"type"`
}

// ModulePolicy 控制哪些模块允许参与解析。
type ModulePolicy struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// PluginConfig 描述一个通过 Go plugin 加载的外部模块。
type PluginConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// EnvironmentConfig 允许宿主覆盖环境探测结果。
type EnvironmentConfig struct {
	// CanAutoplay 为 nil 时使用探测器的默认值。
	CanAutoplay *bool           `yaml:"canAutoplay"`
	Flags       map[string]bool `yaml:"flags"`
}

// TelemetryConfig 聚合所有生命周期遥测通道。
type TelemetryConfig struct {
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	MySQL    MySQLConfig    `yaml:"mysql"`
}

// RedisConfig 描述 Redis 发布通道。
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// RabbitMQConfig 描述 RabbitMQ 交换机。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routingKey"`
	Durable    bool   `yaml:"durable"`
}

// MySQLConfig 描述生命周期日志表所在的数据库。
type MySQLConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"maxOpenConns"`
	ConnMaxLifetimeSeconds int    `yaml:"connMaxLifetimeSeconds"`
}

// ConnMaxLifetime 返回连接最大存活时间。
func (c MySQLConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// MetricsConfig 控制指标 HTTP 端点。
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// APIConfig 控制实例控制接口。
type APIConfig struct {
	Address string `yaml:"address"`
}

// Load 负责解析指定路径的 YAML 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse 解析 YAML 内容并填充默认值。
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置的内部一致性。
func (c *Config) Validate() error {
	for i, src := range c.Sources {
		if strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("source %d: url cannot be empty", i)
		}
	}
	for i, p := range c.Plugins {
		if p.Enabled && strings.TrimSpace(p.Path) == "" {
			return fmt.Errorf("plugin %d: path cannot be empty when enabled", i)
		}
	}
	for _, name := range c.Policy.Deny {
		for _, allowed := range c.Policy.Allow {
			if name == allowed {
				return fmt.Errorf("module %s is both allowed and denied", name)
			}
		}
	}
	return nil
}

// ModuleSettings 返回某个模块配置的深拷贝，嵌套的 map 与列表同样被复制，
// 模块可以随意修改而不影响全局配置。
func (c *Config) ModuleSettings(name string) map[string]any {
	if c == nil {
		return map[string]any{}
	}
	src := c.Modules[name]
	dup := make(map[string]any, len(src))
	for k, v := range src {
		dup[k] = copyValue(v)
	}
	return dup
}

// copyValue 复制 yaml.v3 解码出的 map 与切片，标量原样返回。
func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		dup := make(map[string]any, len(val))
		for k, item := range val {
			dup[k] = copyValue(item)
		}
		return dup
	case map[any]any:
		dup := make(map[any]any, len(val))
		for k, item := range val {
			dup[k] = copyValue(item)
		}
		return dup
	case []any:
		dup := make([]any, len(val))
		for i, item := range val {
			dup[i] = copyValue(item)
		}
		return dup
	default:
		return v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Modules == nil {
		c.Modules = map[string]map[string]any{}
	}
	if c.Environment.Flags == nil {
		c.Environment.Flags = map[string]bool{}
	}
	if c.Telemetry.Redis.Address != "" && c.Telemetry.Redis.Channel == "" {
		c.Telemetry.Redis.Channel = "playcore:lifecycle"
	}
	if c.Telemetry.RabbitMQ.URL != "" {
		if c.Telemetry.RabbitMQ.Exchange == "" {
			c.Telemetry.RabbitMQ.Exchange = "playcore.lifecycle"
		}
		if c.Telemetry.RabbitMQ.RoutingKey == "" {
			c.Telemetry.RabbitMQ.RoutingKey = "instance"
		}
	}
	if c.Telemetry.MySQL.DSN != "" && c.Telemetry.MySQL.MaxOpenConns <= 0 {
		c.Telemetry.MySQL.MaxOpenConns = 4
	}
	for i := range c.Sources {
		c.Sources[i].Type = strings.ToLower(strings.TrimSpace(c.Sources[i].Type))
	}
}

// resolvePaths 把相对路径解析为相对于配置文件所在目录。
func (c *Config) resolvePaths(baseDir string) {
	for i, src := range c.Sources {
		if strings.Contains(src.URL, "://") || filepath.IsAbs(src.URL) {
			continue
		}
		c.Sources[i].URL = filepath.Join(baseDir, src.URL)
	}
	for i, p := range c.Plugins {
		if p.Path != "" && !filepath.IsAbs(p.Path) {
			c.Plugins[i].Path = filepath.Join(baseDir, p.Path)
		}
	}
	if j := c.Logging.Journal.Path; j != "" && !filepath.IsAbs(j) {
		c.Logging.Journal.Path = filepath.Join(baseDir, j)
	}
}
