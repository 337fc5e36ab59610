package otel

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DBSpan 为一条 SQL 创建 client span，span 名取语句的第一个关键字
func DBSpan(ctx context.Context, query string) (context.Context, trace.Span) {
	op := sqlOperation(query)
	return Tracer().Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.statement", query),
		),
	)
}

func sqlOperation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "query"
	}
	return strings.ToLower(fields[0])
}
