package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanRun    = "deployer.run"
	SpanStage  = "deployer.stage"
	SpanUpload = "deployer.upload"
)

// Attribute keys.
const (
	AttrRunID    = "deployer.run_id"
	AttrNetwork  = "deployer.network"
	AttrStage    = "deployer.stage"
	AttrArtifact = "deployer.artifact"
	AttrKey      = "deployer.key"
	AttrAddress  = "deployer.address"
	AttrDecision = "deployer.decision"
)

// StartStage opens a span for one orchestration stage.
func StartStage(ctx context.Context, tracer trace.Tracer, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, SpanStage+"."+stage, trace.WithAttributes(attribute.String(AttrStage, stage)))
}

// StartUpload opens a span for one artifact.
func StartUpload(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, SpanUpload, trace.WithAttributes(attribute.String(AttrArtifact, name)))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
