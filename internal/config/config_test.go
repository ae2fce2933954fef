package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}

	if cfg.Global.ShutdownTimeout.DurationValue() != 10*time.Second {
		t.Fatalf("ShutdownTimeout 应该自动填充默认值，得到 %v", cfg.Global.ShutdownTimeout.DurationValue())
	}
	if cfg.Content.Root == "" {
		t.Fatalf("ContentRoot 应该被保留")
	}
	if cfg.Global.ListenPort != 8080 {
		t.Fatalf("ListenPort 应当被解析，得到 %d", cfg.Global.ListenPort)
	}
	if cfg.Content.PressureInterval.DurationValue() != 30*time.Second {
		t.Fatalf("PressureInterval 解析错误: %v", cfg.Content.PressureInterval.DurationValue())
	}
	if cfg.Content.ETagCacheSize != defaultETagCacheSize {
		t.Fatalf("ETagCacheSize 应退回默认值，得到 %d", cfg.Content.ETagCacheSize)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateStreamThresholdBoundedByCacheAdmission(t *testing.T) {
	cfg := validConfig()
	cfg.Content.MaxMemoryCache = 1000
	cfg.Content.StreamThreshold = 101

	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("期望 FieldError，得到 %v", err)
	}
	if fieldErr.Field != "Global.StreamThreshold" {
		t.Fatalf("错误字段不符: %s", fieldErr.Field)
	}

	cfg.Content.StreamThreshold = 100
	if err := cfg.Validate(); err != nil {
		t.Fatalf("阈值等于 10%% 时应通过: %v", err)
	}
}

func TestValidateContentFields(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty root", func(c *Config) { c.Content.Root = " " }},
		{"document with slash", func(c *Config) { c.Content.DefaultDocument = "a/index.html" }},
		{"document dotdot", func(c *Config) { c.Content.DefaultDocument = ".." }},
		{"zero cache", func(c *Config) { c.Content.MaxMemoryCache = 0 }},
		{"zero threshold", func(c *Config) { c.Content.StreamThreshold = 0 }},
		{"zero streams", func(c *Config) { c.Content.MaxConcurrentStreams = 0 }},
		{"negative compress floor", func(c *Config) { c.Content.CompressMinBytes = -1 }},
		{"zero etag memo", func(c *Config) { c.Content.ETagCacheSize = 0 }},
		{"zero pressure interval", func(c *Config) { c.Content.PressureInterval = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestCacheAdmissionLimit(t *testing.T) {
	cfg := ContentConfig{MaxMemoryCache: 1000}
	if got := cfg.CacheAdmissionLimit(); got != 100 {
		t.Fatalf("期望 100，得到 %d", got)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      8080,
			LogLevel:        "info",
			ShutdownTimeout: Duration(time.Second),
		},
		Content: ContentConfig{
			Root:                 "./content",
			DefaultDocument:      "index.html",
			MaxMemoryCache:       10 * 1024 * 1024,
			StreamThreshold:      1024 * 1024,
			MaxConcurrentStreams: 4,
			CompressMinBytes:     1024,
			ETagCacheSize:        100,
			PressureInterval:     Duration(time.Second),
		},
	}
}
