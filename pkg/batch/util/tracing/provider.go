package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"itemstep/pkg/batch/config"
	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
)

// NewProvider は設定から TracerProvider を作成し、グローバルに登録します。
// Endpoint が空の場合はエクスポーターを持たない TracerProvider を返します。
// 呼び出し側は終了時に Shutdown を呼び出す必要があります。
func NewProvider(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	if err != nil {
		return nil, exception.NewBatchError("tracing", "リソースの作成に失敗しました", err, false, false)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	}
	if cfg.Endpoint != "" {
		expOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			expOpts = append(expOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, expOpts...)
		if err != nil {
			return nil, exception.NewBatchError("tracing", "OTLP エクスポーターの作成に失敗しました", err, false, false)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Infof("トレースを %s に送信します。", cfg.Endpoint)
	} else {
		logger.Debugf("トレースのエンドポイントが指定されていないため、スパンは送信されません。")
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func sampler(rate float64) sdktrace.Sampler {
	if rate <= 0 || rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}
