package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultListenPort           = 8080
	defaultDocument             = "index.html"
	defaultMaxMemoryCache       = 100 * 1024 * 1024
	defaultStreamThreshold      = 1024 * 1024
	defaultMaxConcurrentStreams = 100
	defaultCompressMinBytes     = 1024
	defaultETagCacheSize        = 10000
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyContentDefaults(&cfg.Content)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.Content.Root)
	if err != nil {
		return nil, fmt.Errorf("无法解析内容目录: %w", err)
	}
	cfg.Content.Root = absRoot

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", defaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("ShutdownTimeout", "10s")
	v.SetDefault("ContentRoot", "./content")
	v.SetDefault("DefaultDocument", defaultDocument)
	v.SetDefault("MaxMemoryCacheSize", defaultMaxMemoryCache)
	v.SetDefault("StreamThreshold", defaultStreamThreshold)
	v.SetDefault("MaxConcurrentStreams", defaultMaxConcurrentStreams)
	v.SetDefault("CompressMinBytes", defaultCompressMinBytes)
	v.SetDefault("ETagCacheSize", defaultETagCacheSize)
	v.SetDefault("PressureInterval", "30s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = defaultListenPort
	}
	if g.ShutdownTimeout.DurationValue() == 0 {
		g.ShutdownTimeout = Duration(10 * time.Second)
	}
}

func applyContentDefaults(c *ContentConfig) {
	if c.DefaultDocument == "" {
		c.DefaultDocument = defaultDocument
	}
	if c.PressureInterval.DurationValue() == 0 {
		c.PressureInterval = Duration(30 * time.Second)
	}
	if c.ETagCacheSize == 0 {
		c.ETagCacheSize = defaultETagCacheSize
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
