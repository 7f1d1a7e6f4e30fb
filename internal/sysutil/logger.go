package sysutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/Hara602/devtree/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log and LogSugar are shared by every package. They discard everything
// until InitLogger is called, so library users get silence by default.
var Log = zap.NewNop()
var LogSugar = Log.Sugar()

// InitLogger replaces the package loggers according to cfg.
func InitLogger(cfg config.LoggingConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder        // 格式化时间输出
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder // 彩色级别
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	Log = zap.New(core, zap.AddCaller())
	LogSugar = Log.Sugar()
	return nil
}
