// Package tracing provides otel span helpers for node execution, RAG
// search, and sidecar calls; no other package in this module calls them,
// so a run records no spans. Trimmed to API-only use: no
// SDK or OTLP exporter is wired (see DESIGN.md), so spans are no-ops until
// a real TracerProvider is registered globally — which costs nothing to
// carry and costs nothing to leave unconfigured.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ai-studio/workflow-core"

// Tracer returns the named tracer from whatever TracerProvider is
// currently registered (otel.GetTracerProvider()), defaulting to the
// no-op implementation when none has been installed.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartNodeSpan starts a span for one node execution, tagged with the
// node id and type so a later-installed exporter can group by either.
func StartNodeSpan(ctx context.Context, nodeID, nodeType string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "node.execute", trace.WithAttributes(
		attribute.String("node.id", nodeID),
		attribute.String("node.type", nodeType),
	))
}

// StartSidecarSpan starts a span for one sidecar HTTP call.
func StartSidecarSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "sidecar."+op)
}

// StartSearchSpan starts a span for one RAG index search.
func StartSearchSpan(ctx context.Context, indexDir string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "rag.search", trace.WithAttributes(
		attribute.String("rag.index_dir", indexDir),
	))
}

// RecordError marks span as errored and attaches err's message, the usual
// end-of-span pattern when a traced operation fails.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
