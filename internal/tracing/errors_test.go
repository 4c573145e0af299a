package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordedSpan(t *testing.T, record func(span trace.Span)) sdktrace.ReadOnlySpan {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	record(span)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	return ended[0]
}

func attrValue(span sdktrace.ReadOnlySpan, key string) string {
	for _, attr := range span.Attributes() {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}

func TestRecordErrorTagsTypeAndStatus(t *testing.T) {
	span := recordedSpan(t, func(s trace.Span) {
		RecordError(s, errors.New("模型暂时不可用"), ErrorTypeLLM)
	})

	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "llm", attrValue(span, "error.type"))
	assert.Equal(t, "模型暂时不可用", attrValue(span, "error.message"))
	assert.NotEmpty(t, span.Events(), "应记录exception事件")
}

func TestRecordErrorIgnoresNilInputs(t *testing.T) {
	span := recordedSpan(t, func(s trace.Span) {
		RecordError(s, nil, ErrorTypeDB)
	})
	assert.Equal(t, codes.Unset, span.Status().Code, "nil错误不应改动span状态")

	// nil span不应panic
	RecordError(nil, errors.New("boom"), ErrorTypeDB)
}

func TestRecordHTTPErrorCategorizesStatusCode(t *testing.T) {
	span := recordedSpan(t, func(s trace.Span) {
		RecordHTTPError(s, errors.New("bad gateway"), 502)
	})

	assert.Equal(t, "http", attrValue(span, "error.type"))
	assert.Equal(t, "server_error", attrValue(span, "error.category"))
	assert.Equal(t, codes.Error, span.Status().Code)
}
