package otel

import (
	"context"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestMQHeaders_RoundTripSpanContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := amqp091.Table{}
	InjectMQHeaders(ctx, headers)
	assert.Contains(t, headers, "traceparent")

	got := trace.SpanContextFromContext(ExtractMQHeaders(context.Background(), headers))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
}

func TestExtractMQHeaders_NilHeaders(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ExtractMQHeaders(ctx, nil))
}

func TestSQLOperation(t *testing.T) {
	assert.Equal(t, "select", sqlOperation("  SELECT id FROM users"))
	assert.Equal(t, "insert", sqlOperation("INSERT INTO audit_logs VALUES ($1)"))
	assert.Equal(t, "query", sqlOperation(""))
}
