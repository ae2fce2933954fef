package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
ContentRoot = "./content"
PressureInterval = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsIntegerSeconds(t *testing.T) {
	cfg := `
ContentRoot = "./content"
PressureInterval = 5
ShutdownTimeout = "2s"
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Content.PressureInterval.DurationValue() != 5*time.Second {
		t.Fatalf("整数秒应解析为 5s，得到 %v", loaded.Content.PressureInterval.DurationValue())
	}
	if loaded.Global.ShutdownTimeout.DurationValue() != 2*time.Second {
		t.Fatalf("ShutdownTimeout 解析错误: %v", loaded.Global.ShutdownTimeout.DurationValue())
	}
}

func TestLoadMakesContentRootAbsolute(t *testing.T) {
	path := writeTempConfig(t, `ContentRoot = "relative/content"`)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if !filepath.IsAbs(loaded.Content.Root) {
		t.Fatalf("ContentRoot 应为绝对路径: %s", loaded.Content.Root)
	}
	if loaded.Content.MaxMemoryCache != defaultMaxMemoryCache {
		t.Fatalf("MaxMemoryCacheSize 默认值错误: %d", loaded.Content.MaxMemoryCache)
	}
	if loaded.Content.StreamThreshold != defaultStreamThreshold {
		t.Fatalf("StreamThreshold 默认值错误: %d", loaded.Content.StreamThreshold)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DurationValue() != 90*time.Second {
		t.Fatalf("期望 90s，得到 %v", d.DurationValue())
	}
	if err := d.UnmarshalText([]byte("0x10")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DurationValue() != 16*time.Second {
		t.Fatalf("期望 16s，得到 %v", d.DurationValue())
	}
	if err := d.UnmarshalText([]byte("later")); err == nil {
		t.Fatalf("非法值应返回错误")
	}
}
