package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError(globalField("ListenPort"), "必须在 1-65535")
	}
	if g.LogMaxSize < 0 {
		return newFieldError(globalField("LogMaxSize"), "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError(globalField("LogMaxBackups"), "不能为负数")
	}
	if g.ShutdownTimeout.DurationValue() <= 0 {
		return newFieldError(globalField("ShutdownTimeout"), "必须大于 0")
	}

	return c.Content.validate()
}

func (c ContentConfig) validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return newFieldError(globalField("ContentRoot"), "不能为空")
	}
	if err := validateDocumentName(c.DefaultDocument); err != nil {
		return fmt.Errorf("%s: %w", globalField("DefaultDocument"), err)
	}
	if c.MaxMemoryCache <= 0 {
		return newFieldError(globalField("MaxMemoryCacheSize"), "必须大于 0")
	}
	if c.StreamThreshold <= 0 {
		return newFieldError(globalField("StreamThreshold"), "必须大于 0")
	}
	if c.StreamThreshold > c.CacheAdmissionLimit() {
		return newFieldError(globalField("StreamThreshold"), "不能超过 MaxMemoryCacheSize 的 10%")
	}
	if c.MaxConcurrentStreams <= 0 {
		return newFieldError(globalField("MaxConcurrentStreams"), "必须大于 0")
	}
	if c.CompressMinBytes < 0 {
		return newFieldError(globalField("CompressMinBytes"), "不能为负数")
	}
	if c.ETagCacheSize <= 0 {
		return newFieldError(globalField("ETagCacheSize"), "必须大于 0")
	}
	if c.PressureInterval.DurationValue() <= 0 {
		return newFieldError(globalField("PressureInterval"), "必须大于 0")
	}
	return nil
}

func validateDocumentName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(trimmed, `/\`) {
		return errors.New("不允许包含路径分隔符")
	}
	if trimmed == "." || trimmed == ".." {
		return errors.New("不是合法的文件名")
	}
	return nil
}
