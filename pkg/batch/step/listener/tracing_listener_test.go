package listener_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"itemstep/pkg/batch/step/listener"
)

func attr(t *testing.T, span tracetest.SpanStub, key string) attribute.Value {
	t.Helper()
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	t.Fatalf("属性 %s がありません", key)
	return attribute.Value{}
}

func TestTracingListener(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	l := listener.NewTracingListener(tp)
	ctx := context.Background()

	ok := finishedExecution(t, true)
	l.BeforeStep(ctx, ok)
	l.AfterStep(ctx, ok)
	ko := finishedExecution(t, false)
	l.BeforeStep(ctx, ko)
	l.AfterStep(ctx, ko)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "step users", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, int64(3), attr(t, spans[0], "step.read_count").AsInt64())
	assert.Equal(t, int64(1), attr(t, spans[0], "step.filter_count").AsInt64())
	assert.Equal(t, "PROCESSING", attr(t, spans[0], "step.last_stage").AsString())
	assert.Equal(t, ok.ID, attr(t, spans[0], "step.execution_id").AsString())

	assert.Equal(t, codes.Error, spans[1].Status.Code)
	require.Len(t, spans[1].Events, 1, "失敗が例外イベントとして記録される")
	assert.Equal(t, "exception", spans[1].Events[0].Name)
}

func TestTracingListener_AfterWithoutBefore(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	listener.NewTracingListener(tp).AfterStep(context.Background(), finishedExecution(t, true))
	assert.Empty(t, exporter.GetSpans())
}
