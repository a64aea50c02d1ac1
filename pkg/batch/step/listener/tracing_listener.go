package listener

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"itemstep/pkg/batch/core"
)

const tracerName = "itemstep/pkg/batch/step"

// TracingListener はステップの実行ごとに OpenTelemetry のスパンを記録する StepExecutionListener の実装です。
type TracingListener struct {
	tracer trace.Tracer
	spans  sync.Map // execution ID -> trace.Span
}

// NewTracingListener は新しい TracingListener のインスタンスを作成します。
// tp が nil の場合はグローバルの TracerProvider を使用します。
func NewTracingListener(tp trace.TracerProvider) *TracingListener {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingListener{tracer: tp.Tracer(tracerName)}
}

// BeforeStep はステップのスパンを開始します。
func (l *TracingListener) BeforeStep(ctx context.Context, se *core.StepExecution) {
	_, span := l.tracer.Start(ctx, "step "+se.StepName,
		trace.WithTimestamp(se.StartTime),
		trace.WithAttributes(
			attribute.String("step.name", se.StepName),
			attribute.Int("step.id", int(se.StepID)),
			attribute.String("step.execution_id", se.ID),
		))
	l.spans.Store(se.ID, span)
}

// AfterStep は集計値と最終状態をスパンに記録して終了します。
func (l *TracingListener) AfterStep(ctx context.Context, se *core.StepExecution) {
	v, ok := l.spans.LoadAndDelete(se.ID)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(
		attribute.String("step.status", string(se.Status)),
		attribute.String("step.last_stage", string(se.LastStage)),
		attribute.Int("step.read_count", se.ReadCount),
		attribute.Int("step.blank_count", se.BlankCount),
		attribute.Int("step.skip_count", se.SkipReadCount),
		attribute.Int("step.filter_count", se.FilterCount),
		attribute.Int("step.write_count", se.WriteCount),
	)
	if se.Status == core.StatusKO {
		for _, f := range se.Failures {
			span.RecordError(f)
		}
		span.SetStatus(codes.Error, "ステップが KO で終了しました")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

var _ core.StepExecutionListener = (*TracingListener)(nil)
