package cli

import (
	"context"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/infrastructure/config"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// observability bundles the OpenTelemetry providers and the profiler.
// Every provider is a no-op when disabled in config.
type observability struct {
	logger   *zap.Logger
	tracer   *telemetry.TracerProvider
	meter    *telemetry.MeterProvider
	logs     *telemetry.LoggerProvider
	profiler *telemetry.Profiler
	sync     *telemetry.SyncMetrics
}

func setupObservability(ctx context.Context, cfg *config.Config, base *zap.Logger) (*observability, error) {
	t := cfg.Telemetry
	o := &observability{logger: base}

	var err error
	o.tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		SamplingRatio:     t.SamplingRatio,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, base)
	if err != nil {
		return nil, fmt.Errorf("tracer provider: %w", err)
	}

	o.meter, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           t.MetricsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ExportInterval:    t.MetricsExportInterval,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, base)
	if err != nil {
		o.shutdown(ctx)
		return nil, fmt.Errorf("meter provider: %w", err)
	}

	o.logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           t.LogsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, base)
	if err != nil {
		o.shutdown(ctx)
		return nil, fmt.Errorf("logger provider: %w", err)
	}
	if o.logs.IsEnabled() {
		level, lerr := zapcore.ParseLevel(cfg.Log.Level)
		if lerr != nil {
			level = zapcore.InfoLevel
		}
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    t.ServiceName,
			LoggerProvider: o.logs,
			Level:          level,
		})
		o.logger = telemetry.NewBridgedLogger(base.Core(), otelCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	o.sync, err = telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  o.meter.Meter("ebaysync"),
		Logger: o.logger,
	})
	if err != nil {
		o.shutdown(ctx)
		return nil, fmt.Errorf("sync metrics: %w", err)
	}

	o.profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         t.ProfilingEnabled,
		ServerAddress:   t.PyroscopeAddress,
		ApplicationName: t.ServiceName,
	}, o.logger)
	if err != nil {
		o.shutdown(ctx)
		return nil, fmt.Errorf("profiler: %w", err)
	}
	if o.profiler.IsEnabled() {
		if err := o.tracer.EnableSpanProfiles(); err != nil {
			o.logger.Warn("span profiles not enabled", zap.Error(err))
		}
	}
	return o, nil
}

// shutdown flushes and stops every provider that was created.
func (o *observability) shutdown(ctx context.Context) {
	o.sync.Stop()
	if o.profiler != nil {
		if err := o.profiler.Stop(); err != nil {
			o.logger.Warn("profiler stop failed", zap.Error(err))
		}
	}
	if o.logs != nil {
		if err := o.logs.Shutdown(ctx); err != nil {
			o.logger.Warn("logger provider shutdown failed", zap.Error(err))
		}
	}
	if o.meter != nil {
		if err := o.meter.Shutdown(ctx); err != nil {
			o.logger.Warn("meter provider shutdown failed", zap.Error(err))
		}
	}
	if o.tracer != nil {
		if err := o.tracer.Shutdown(ctx); err != nil {
			o.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}
}
