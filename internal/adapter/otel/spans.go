package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "conductor"

// StartTaskSpan starts a span for one task execution.
func StartTaskSpan(ctx context.Context, taskID, taskType, agent string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.execute",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.type", taskType),
			attribute.String("agent", agent),
		),
	)
}

// StartStageSpan starts a span for one reasoning stage within a task.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "reasoning."+stage,
		trace.WithAttributes(attribute.String("reasoning.stage", stage)),
	)
}

// StartScanSpan starts a span for a proactive scan.
func StartScanSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "proactive.scan")
}
