package telemetry

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapBridgeConfig configures the zap to OpenTelemetry log bridge
type ZapBridgeConfig struct {
	// ServiceName names the OTel logger
	ServiceName    string
	LoggerProvider *LoggerProvider
	// Level is the lowest level forwarded to the collector
	Level zapcore.Level
}

// NewZapOTELCore returns a core that forwards entries to the logger provider.
// It is a no-op core while OTLP logs are disabled.
func NewZapOTELCore(cfg ZapBridgeConfig) zapcore.Core {
	if !cfg.LoggerProvider.IsEnabled() {
		return zapcore.NewNopCore()
	}
	core := otelzap.NewCore(cfg.ServiceName, otelzap.WithLoggerProvider(cfg.LoggerProvider.provider))
	if cfg.Level == zapcore.DebugLevel {
		return core
	}
	return &levelFilterCore{Core: core, min: cfg.Level}
}

// levelFilterCore drops entries below min; otelzap has no level of its own
type levelFilterCore struct {
	zapcore.Core
	min zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), min: c.min}
}

// NewBridgedLogger tees baseCore and otelCore into one logger
func NewBridgedLogger(baseCore, otelCore zapcore.Core, opts ...zap.Option) *zap.Logger {
	return zap.New(zapcore.NewTee(baseCore, otelCore), opts...)
}
