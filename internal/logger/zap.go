package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper over zap's sugared API.
type Logger struct {
	*zap.SugaredLogger
}

var zapLevels = map[string]zapcore.Level{
	DebugLevel: zapcore.DebugLevel,
	InfoLevel:  zapcore.InfoLevel,
	WarnLevel:  zapcore.WarnLevel,
	ErrorLevel: zapcore.ErrorLevel,
}

// toZapLevel maps a configured level string onto zap's scale. Unknown
// strings land on info rather than failing startup.
func toZapLevel(s string) zapcore.Level {
	if lvl, ok := zapLevels[s]; ok {
		return lvl
	}
	return zapcore.InfoLevel
}

// newZapLogger builds the console logger all components share. Timestamps
// stay on: incident reconstruction needs wall-clock order even when the
// service runs without journald.
func newZapLogger(level string) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.ConsoleSeparator = "  "

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		zap.NewAtomicLevelAt(toZapLevel(level)),
	)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}
}
