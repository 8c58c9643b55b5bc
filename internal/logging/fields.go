package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// LookupFields 提供 group/key/引擎/来源字段，供 revalidate 日志复用。
func LookupFields(group, key, engine, source string) logrus.Fields {
	fields := logrus.Fields{
		"group":  group,
		"key":    key,
		"engine": engine,
	}
	if source != "" {
		fields["source"] = source
		fields["cache_hit"] = source == "cache" || source == "not_modified"
	}
	return fields
}
