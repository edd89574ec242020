package reactor

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the severity-leveled sink every reactor component writes
// through: Trace/Debug/Info/Warn/Error/Fatal, mirroring the severity
// surface a logging framework is expected to provide as an external
// collaborator.
type Logger struct {
	z *zap.SugaredLogger
}

// LogConfig configures the default process-wide Logger. The zero value
// logs human-readable output to stderr at Info level.
type LogConfig struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      zapcore.Level
}

// NewLogger builds a Logger from cfg. When FilePath is set, output is
// written through a size-rotated file sink instead of stderr.
func NewLogger(cfg LogConfig) *Logger {
	var ws zapcore.WriteSyncer
	if cfg.FilePath != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		})
	} else {
		ws = zapcore.AddSync(os.Stderr)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, cfg.Level)
	return &Logger{z: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()}
}

func orDefault(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}

// defaultLogger is the process-wide sink used by every reactor component
// unless SetDefaultLogger installs another one.
var defaultLogger = NewLogger(LogConfig{})

// SetDefaultLogger replaces the process-wide Logger used by this package.
func SetDefaultLogger(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// DefaultLogger returns the process-wide Logger, so ambient packages
// (config, watch, adminplane) can log through the same severity surface
// without each constructing their own zap pipeline.
func DefaultLogger() *Logger { return defaultLogger }

func (l *Logger) Tracef(format string, args ...interface{}) { l.z.Debugf(format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.z.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.z.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.z.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.z.Errorf(format, args...) }

// Fatalf logs at fatal severity and aborts the process, matching the
// "abort the process with a descriptive log" contract for setup-fatal
// and invariant-violation errors.
func (l *Logger) Fatalf(format string, args ...interface{}) { l.z.Fatalf(format, args...) }

func (l *Logger) Sync() error { return l.z.Sync() }
