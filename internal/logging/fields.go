package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供路径/状态码/命中状态字段，供内容分发日志复用。
func RequestFields(path string, status int, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"action":    "deliver",
		"path":      path,
		"status":    status,
		"cache_hit": cacheHit,
	}
}
