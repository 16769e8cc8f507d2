package server

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 是全局可用的 SugaredLogger；InitLogger 之前为 Nop，测试无需初始化
var Log = zap.NewNop().Sugar()

// InitLogger 初始化 zap 日志：配置了文件则写入滚动文件，否则写 stderr
func InitLogger(cfg LogConfig) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = l
	}

	var ws zapcore.WriteSyncer
	if cfg.File == "" {
		ws = zapcore.Lock(os.Stderr)
	} else {
		// 文件滚动策略来自配置
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, level)
	Log = zap.New(core, zap.AddCaller()).Sugar()
	return nil
}

// SyncLogger 清理和同步缓冲
func SyncLogger() {
	_ = Log.Sync()
}
