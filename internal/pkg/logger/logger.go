package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/iris_server/config"
)

// Setup 按配置初始化全局 logrus，返回标准 logger
func Setup(cfg *config.LogConfig) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if err != nil && cfg.Level != "" {
		log.WithField("level", cfg.Level).Warn("unknown log level, falling back to info")
	}

	return log
}
