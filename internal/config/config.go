// Package config loads the YAML config file and watches it for changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/v2ray-mvp/internal/convert"
)

type Config struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data-dir"`

	Engine     EngineConfig     `yaml:"engine"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Ping       PingConfig       `yaml:"ping"`
	Log        LogConfig        `yaml:"log"`
	RateLimit  RateLimitConfig  `yaml:"rate-limit"`
	Conversion convert.Defaults `yaml:"conversion"`
}

type EngineConfig struct {
	Binary         string   `yaml:"binary"`
	Args           []string `yaml:"args"`
	ConfigFileName string   `yaml:"config-file-name"`
	// LogFile is relative to the data dir unless absolute. Empty discards
	// engine output.
	LogFile string `yaml:"log-file"`
}

type ProxyConfig struct {
	// Disabled leaves the system proxy untouched on connect/disconnect.
	Disabled       bool   `yaml:"disabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	NetworkService string `yaml:"network-service"`
}

type PingConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File enables a rotating JSON log next to the console output.
	File       string `yaml:"file"`
	MaxSize    string `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

type RateLimitConfig struct {
	// ImportsPerMinute <= 0 disables limiting.
	ImportsPerMinute float64 `yaml:"imports-per-minute"`
	Burst            int64   `yaml:"burst"`
}

func Default() Config {
	return Config{
		Listen: "127.0.0.1:25500",
		Engine: EngineConfig{
			LogFile: "engine.log",
		},
		Proxy: ProxyConfig{
			Host:           "127.0.0.1",
			Port:           1080,
			NetworkService: "Wi-Fi",
		},
		Ping: PingConfig{
			URL:     "https://8.8.8.8",
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    "10MB",
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		RateLimit: RateLimitConfig{
			ImportsPerMinute: 60,
			Burst:            10,
		},
		Conversion: convert.StandardDefaults(),
	}
}

// Load reads path over Default(). An empty path or a missing file yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.Conversion = convert.StandardDefaults().Merge(cfg.Conversion)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen 不能为空"))
	}
	if !validPort(c.Proxy.Port) {
		errs = append(errs, fmt.Errorf("proxy.port 超出范围: %d", c.Proxy.Port))
	}
	if !validPort(c.Conversion.InboundPort) {
		errs = append(errs, fmt.Errorf("conversion.inbound-port 超出范围: %d", c.Conversion.InboundPort))
	}
	if !validPort(c.Conversion.FallbackPort) {
		errs = append(errs, fmt.Errorf("conversion.fallback-port 超出范围: %d", c.Conversion.FallbackPort))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level 无效: %q", c.Log.Level))
	}
	if c.Ping.URL == "" {
		errs = append(errs, errors.New("ping.url 不能为空"))
	}
	if c.RateLimit.ImportsPerMinute > 0 && c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate-limit.burst 必须大于 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("配置无效: %w", errors.Join(errs...))
	}
	return nil
}

func validPort(p int) bool { return p > 0 && p <= 65535 }
